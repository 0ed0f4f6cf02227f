package aws

import "strings"

// On-demand Linux prices in us-east-1, USD per hour.
var instanceRates = map[string]float64{
	"t3.nano":     0.0052,
	"t3.micro":    0.0104,
	"t3.small":    0.0208,
	"t3.medium":   0.0416,
	"t3.large":    0.0832,
	"t3.xlarge":   0.1664,
	"t3.2xlarge":  0.3328,
	"m5.large":    0.096,
	"m5.xlarge":   0.192,
	"m5.2xlarge":  0.384,
	"m5.4xlarge":  0.768,
	"m6i.large":   0.096,
	"m6i.xlarge":  0.192,
	"m6i.2xlarge": 0.384,
	"c5.large":    0.085,
	"c5.xlarge":   0.17,
	"c5.2xlarge":  0.34,
	"c6i.large":   0.085,
	"c6i.xlarge":  0.17,
	"r5.large":    0.126,
	"r5.xlarge":   0.252,
	"r5.2xlarge":  0.504,
	"r6i.large":   0.126,
	"r6i.xlarge":  0.252,
}

// Size multipliers relative to .large, for families missing from the table.
var sizeFactor = map[string]float64{
	"medium":   0.5,
	"large":    1,
	"xlarge":   2,
	"2xlarge":  4,
	"4xlarge":  8,
	"8xlarge":  16,
	"12xlarge": 24,
	"16xlarge": 32,
}

const defaultLargeRate = 0.1

// InstanceRate estimates the hourly on-demand price of an instance type.
func InstanceRate(instanceType string) float64 {
	if r, ok := instanceRates[instanceType]; ok {
		return r
	}
	_, size, ok := strings.Cut(instanceType, ".")
	if !ok {
		return 0
	}
	if f, ok := sizeFactor[size]; ok {
		return defaultLargeRate * f
	}
	return 0
}

// USD per GB-month.
var volumeRates = map[string]float64{
	"gp2":      0.10,
	"gp3":      0.08,
	"io1":      0.125,
	"io2":      0.125,
	"st1":      0.045,
	"sc1":      0.015,
	"standard": 0.05,
}

// VolumeRate converts an EBS volume's monthly storage price into an hourly one.
func VolumeRate(volumeType string, sizeGB int32) float64 {
	rate, ok := volumeRates[volumeType]
	if !ok {
		rate = volumeRates["gp2"]
	}
	return float64(sizeGB) * rate / 720
}
