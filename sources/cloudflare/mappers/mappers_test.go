package mappers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/shared"
)

var testConfig = Config{AccountID: "acc-123"}

func intPtr(i int) *int { return &i }

func TestEveryKindHasAMapper(t *testing.T) {
	for _, kind := range cloudflare.AllKinds {
		if !Has(kind) {
			t.Errorf("kind %v has no mapper", kind)
		}
		if _, ok := descriptors[kind]; !ok {
			t.Errorf("kind %v has no descriptor", kind)
		}
	}
}

func TestMapBaseEntity(t *testing.T) {
	entity, err := Map(testConfig, cloudflare.R2Bucket{Name: "alpha"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if entity.APIVersion != "backstage.io/v1alpha1" || entity.Kind != "Resource" {
		t.Errorf("unexpected envelope %v %v", entity.APIVersion, entity.Kind)
	}
	if entity.Metadata.Name != "cf-r2-alpha" {
		t.Errorf("unexpected name %v", entity.Metadata.Name)
	}
	if entity.Metadata.Annotations[AccountAnnotation] != "acc-123" {
		t.Errorf("missing account annotation: %v", entity.Metadata.Annotations)
	}
	if entity.Spec.Type != "cloudflare-r2" {
		t.Errorf("unexpected type %v", entity.Spec.Type)
	}
	if entity.Spec.Owner != "unknown" {
		t.Errorf("expected default owner, got %v", entity.Spec.Owner)
	}
	if entity.Spec.System != "" {
		t.Errorf("expected no system, got %v", entity.Spec.System)
	}
	if entity.Spec.Parameters["accountId"] != "acc-123" {
		t.Errorf("parameters must carry the account id: %v", entity.Spec.Parameters)
	}
	if err := entity.Validate(); err != nil {
		t.Errorf("mapped entity is not valid: %v", err)
	}

	custom, err := Map(Config{AccountID: "acc-123", DefaultOwner: "platform", DefaultSystem: "edge"}, cloudflare.R2Bucket{Name: "alpha"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if custom.Spec.Owner != "platform" || custom.Spec.System != "edge" {
		t.Errorf("expected configured owner and system, got %+v", custom.Spec)
	}
}

func TestMapNames(t *testing.T) {
	tests := []struct {
		resource cloudflare.Resource
		want     string
	}{
		{cloudflare.WorkerScript{ID: "api-gateway"}, "cf-worker-api-gateway"},
		{cloudflare.PagesProject{Name: "Marketing Site"}, "cf-pages-marketing-site"},
		{cloudflare.R2Bucket{Name: "Beta!"}, "cf-r2-beta"},
		{cloudflare.D1Database{UUID: "0F1E-22", Name: "main"}, "cf-d1-0f1e-22"},
		{cloudflare.KVNamespace{ID: "abc123", Title: "config"}, "cf-kv-abc123"},
		{cloudflare.Queue{QueueName: "events"}, "cf-queue-events"},
		{cloudflare.AIGateway{ID: "gw"}, "cf-ai-gateway-gw"},
		{cloudflare.VectorizeIndex{Name: "docs"}, "cf-vectorize-docs"},
		{cloudflare.Workflow{Name: "billing"}, "cf-workflow-billing"},
		{cloudflare.DurableObjectNamespace{ClassName: "ChatRoom"}, "cf-do-chatroom"},
		{cloudflare.AISearchIndex{Name: "kb"}, "cf-ai-search-kb"},
		{cloudflare.HyperdriveConfig{ID: "h1"}, "cf-hyperdrive-h1"},
		{cloudflare.ContainerApp{Name: "renderer"}, "cf-container-renderer"},
		{cloudflare.SecretsStore{ID: "s1"}, "cf-secrets-store-s1"},
		{cloudflare.AnalyticsDataset{Name: "events_v2"}, "cf-analytics-events_v2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.resource.Kind()), func(t *testing.T) {
			entity, err := Map(testConfig, tt.resource, nil)
			if err != nil {
				t.Fatal(err)
			}
			if entity.Metadata.Name != tt.want {
				t.Errorf("expected %v, got %v", tt.want, entity.Metadata.Name)
			}
			if shared.SanitizeName(entity.Metadata.Name) != entity.Metadata.Name {
				t.Errorf("name %v is not stable under sanitization", entity.Metadata.Name)
			}
		})
	}
}

func TestNameDependsOnlyOnIdentifier(t *testing.T) {
	a, _ := Map(testConfig, cloudflare.D1Database{UUID: "u1", Name: "main", NumTables: intPtr(3)}, nil)
	b, _ := Map(testConfig, cloudflare.D1Database{UUID: "u1", Name: "renamed"}, nil)
	c, _ := Map(testConfig, cloudflare.D1Database{UUID: "u2", Name: "main"}, nil)

	if a.Metadata.Name != b.Metadata.Name {
		t.Errorf("irrelevant fields changed the name: %v vs %v", a.Metadata.Name, b.Metadata.Name)
	}
	if a.Metadata.Name == c.Metadata.Name {
		t.Errorf("different identifiers produced the same name %v", a.Metadata.Name)
	}
}

func TestMapEmptyIdentifier(t *testing.T) {
	resources := []cloudflare.Resource{
		cloudflare.WorkerScript{},
		cloudflare.R2Bucket{CreationDate: "2024-01-01T00:00:00Z"},
		cloudflare.D1Database{Name: "no uuid"},
		cloudflare.Queue{QueueID: "q1"},
	}

	for _, r := range resources {
		entity, err := Map(testConfig, r, nil)
		if err != nil {
			t.Errorf("%v: expected no error, got %v", r.Kind(), err)
		}
		if entity != nil {
			t.Errorf("%v: expected unmappable resource to yield nil, got %+v", r.Kind(), entity)
		}
	}
}

func TestMapTypeMismatch(t *testing.T) {
	var mismatch *TypeMismatchError

	_, err := table[cloudflare.KindR2](testConfig, cloudflare.D1Database{UUID: "u"}, nil)
	if !errors.As(err, &mismatch) {
		t.Errorf("expected a TypeMismatchError for the wrong resource, got %v", err)
	}

	_, err = Map(testConfig, cloudflare.WorkerScript{ID: "api"}, &cloudflare.WorkflowRun{ID: "r"})
	if !errors.As(err, &mismatch) {
		t.Errorf("expected a TypeMismatchError for the wrong enrichment, got %v", err)
	}

	_, err = Map(testConfig, cloudflare.D1Database{UUID: "u"}, &cloudflare.R2Lifecycle{})
	if !errors.As(err, &mismatch) {
		t.Errorf("expected a TypeMismatchError for enrichment on a plain kind, got %v", err)
	}

	if _, err := Map(testConfig, nil, nil); err == nil {
		t.Error("expected an error for a nil resource")
	}
}

func TestAbsentEnrichmentKeepsShape(t *testing.T) {
	tests := []struct {
		name       string
		resource   cloudflare.Resource
		enrichment cloudflare.Enrichment
		typedNil   cloudflare.Enrichment
		key        string
	}{
		{
			name:     "worker",
			resource: cloudflare.WorkerScript{ID: "api", UsageModel: "standard"},
			enrichment: &cloudflare.WorkerDeployment{
				ID:        "d1",
				CreatedOn: "2024-01-01T00:00:00Z",
				Metadata:  &cloudflare.DeploymentMetadata{CommitSHA: "abc"},
			},
			typedNil: (*cloudflare.WorkerDeployment)(nil),
			key:      "lastDeployment",
		},
		{
			name:       "pages",
			resource:   cloudflare.PagesProject{Name: "site", Domains: []string{"example.com"}},
			enrichment: &cloudflare.PagesDeployment{ID: "p1", Environment: "production", URL: "https://p1.site.pages.dev"},
			typedNil:   (*cloudflare.PagesDeployment)(nil),
			key:        "lastDeployment",
		},
		{
			name:       "r2",
			resource:   cloudflare.R2Bucket{Name: "alpha"},
			enrichment: &cloudflare.R2Lifecycle{Rules: []cloudflare.R2LifecycleRule{{ID: "expire", Status: "Enabled"}}},
			typedNil:   (*cloudflare.R2Lifecycle)(nil),
			key:        "lifecycle",
		},
		{
			name:       "workflow",
			resource:   cloudflare.Workflow{Name: "billing", Steps: intPtr(4)},
			enrichment: &cloudflare.WorkflowRun{ID: "r1", Status: "complete"},
			typedNil:   (*cloudflare.WorkflowRun)(nil),
			key:        "lastRun",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bare, err := Map(testConfig, tt.resource, nil)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := bare.Spec.Parameters[tt.key]; ok {
				t.Errorf("absent enrichment must not add %v", tt.key)
			}

			typedNil, err := Map(testConfig, tt.resource, tt.typedNil)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := typedNil.Spec.Parameters[tt.key]; ok {
				t.Errorf("nil enrichment must not add %v", tt.key)
			}

			full, err := Map(testConfig, tt.resource, tt.enrichment)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := full.Spec.Parameters[tt.key]; !ok {
				t.Fatalf("expected %v in parameters", tt.key)
			}

			// every other key is identical with or without enrichment
			delete(full.Spec.Parameters, tt.key)
			bareJSON, _ := json.Marshal(bare)
			fullJSON, _ := json.Marshal(full)
			if string(bareJSON) != string(fullJSON) {
				t.Errorf("enrichment changed other fields:\n%s\n%s", bareJSON, fullJSON)
			}
		})
	}
}

func TestMapIsDeterministic(t *testing.T) {
	resource := cloudflare.Queue{QueueName: "events", Producers: []string{"api"}}

	first, _ := Map(testConfig, resource, nil)
	second, _ := Map(testConfig, resource, nil)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("mapping is not deterministic:\n%s\n%s", a, b)
	}

	// list fields are always present
	if _, ok := first.Spec.Parameters["consumers"]; !ok {
		t.Error("expected an empty consumers list")
	}
}

func TestMapOptionalValues(t *testing.T) {
	entity, err := Map(testConfig, cloudflare.D1Database{UUID: "u1", Name: "main"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"numTables", "fileSize", "version"} {
		if _, ok := entity.Spec.Parameters[key]; ok {
			t.Errorf("absent %v must be omitted", key)
		}
	}

	zero := 0
	entity, err = Map(testConfig, cloudflare.D1Database{UUID: "u1", Name: "main", NumTables: &zero}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := entity.Spec.Parameters["numTables"]; !ok || v != 0 {
		t.Errorf("a zero table count is a value, got %v", v)
	}
}

func TestType(t *testing.T) {
	it, ok := Type(cloudflare.KindAIGateway)
	if !ok {
		t.Fatal("expected a type for ai-gateway")
	}
	if it.String() != "cloudflare-ai-gateway" || it.Readable() != "Cloudflare AI Gateway" {
		t.Errorf("unexpected type %v / %v", it.String(), it.Readable())
	}
}
