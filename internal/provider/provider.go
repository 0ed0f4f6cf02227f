// Package provider defines the cloud sources that raw cost and inventory facts are read from.
package provider

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/fredphp/yunwei/internal/model"
)

// Provider reads raw facts for accounts of one cloud.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Type returns the provider type.
	Type() model.CloudProvider

	// Health checks provider connectivity.
	Health(ctx context.Context) HealthStatus

	// FetchCosts returns the daily per-service cost records of account within r.
	FetchCosts(ctx context.Context, account model.CloudAccount, r model.DateRange) ([]model.CostRecord, error)

	// FetchResources returns the current inventory of account.
	FetchResources(ctx context.Context, account model.CloudAccount) ([]model.Resource, error)

	// Close cleans up provider resources.
	Close() error
}

// HealthStatus represents provider health.
type HealthStatus struct {
	Healthy     bool           `json:"healthy"`
	Message     string         `json:"message"`
	LastChecked time.Time      `json:"last_checked"`
	Details     map[string]any `json:"details,omitempty"`
}

var categoryKeywords = []struct {
	keyword  string
	category model.Category
}{
	{"database", model.CategoryDatabase},
	{"rds", model.CategoryDatabase},
	{"dynamodb", model.CategoryDatabase},
	{"elasticache", model.CategoryDatabase},
	{"redshift", model.CategoryDatabase},
	{"storage", model.CategoryStorage},
	{"s3", model.CategoryStorage},
	{"ebs", model.CategoryStorage},
	{"backup", model.CategoryStorage},
	{"glacier", model.CategoryStorage},
	{"cloudfront", model.CategoryNetwork},
	{"load balancing", model.CategoryNetwork},
	{"data transfer", model.CategoryNetwork},
	{"virtual private cloud", model.CategoryNetwork},
	{"vpc", model.CategoryNetwork},
	{"route 53", model.CategoryNetwork},
	{"compute", model.CategoryCompute},
	{"ec2", model.CategoryCompute},
	{"lambda", model.CategoryCompute},
	{"container", model.CategoryCompute},
	{"kubernetes", model.CategoryCompute},
	{"fargate", model.CategoryCompute},
}

// CategoryFor maps a billing service name onto a cost category.
func CategoryFor(service string) model.Category {
	s := strings.ToLower(service)
	for _, k := range categoryKeywords {
		if strings.Contains(s, k.keyword) {
			return k.category
		}
	}
	return model.CategoryOther
}

// Registry manages registered providers.
type Registry struct {
	providers map[model.CloudProvider]Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[model.CloudProvider]Provider),
	}
}

// Register adds a provider to the registry, keyed by its type.
func (r *Registry) Register(p Provider) {
	r.providers[p.Type()] = p
}

// Get retrieves the provider for a cloud.
func (r *Registry) Get(t model.CloudProvider) (Provider, bool) {
	p, ok := r.providers[t]
	return p, ok
}

// Names returns all provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

// HealthAll checks health of all providers.
func (r *Registry) HealthAll(ctx context.Context) map[string]HealthStatus {
	health := make(map[string]HealthStatus)
	for _, p := range r.providers {
		health[p.Name()] = p.Health(ctx)
	}
	return health
}

// Close closes all providers.
func (r *Registry) Close() error {
	for _, p := range r.providers {
		_ = p.Close()
	}
	return nil
}
