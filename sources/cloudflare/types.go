package cloudflare

import (
	"time"

	"github.com/healthfees-org/cloudflare-backstage.io/sources/shared"
)

// Source is the provider segment of every catalog type string
const Source = shared.Source("cloudflare")

// Kind identifies a category of Cloudflare resource with its own endpoints.
type Kind string

const (
	KindWorker          Kind = "workers"
	KindPages           Kind = "pages"
	KindR2              Kind = "r2"
	KindD1              Kind = "d1"
	KindKV              Kind = "kv"
	KindQueue           Kind = "queues"
	KindAIGateway       Kind = "ai-gateway"
	KindVectorize       Kind = "vectorize"
	KindWorkflow        Kind = "workflows"
	KindDurableObject   Kind = "durable-objects"
	KindAISearch        Kind = "ai-search"
	KindHyperdrive      Kind = "hyperdrive"
	KindContainer       Kind = "containers"
	KindSecretsStore    Kind = "secrets-store"
	KindAnalyticsEngine Kind = "analytics-engine"
)

// AllKinds lists every discoverable kind in declaration order
var AllKinds = []Kind{
	KindWorker,
	KindPages,
	KindR2,
	KindD1,
	KindKV,
	KindQueue,
	KindAIGateway,
	KindVectorize,
	KindWorkflow,
	KindDurableObject,
	KindAISearch,
	KindHyperdrive,
	KindContainer,
	KindSecretsStore,
	KindAnalyticsEngine,
}

// Resource is a single object returned by a kind's list endpoint
type Resource interface {
	Kind() Kind
	// Identifier is the stable provider id the catalog name derives from. An
	// empty identifier makes the resource unmappable.
	Identifier() string
}

// Enrichment is the result of a secondary per-resource lookup
type Enrichment interface {
	// EnrichmentKey is the parameters key the record is embedded under
	EnrichmentKey() string
}

// ParseTimestamp parses an RFC3339 timestamp, returning the zero time for
// empty or malformed input.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type TailConsumer struct {
	Service     string `json:"service"`
	Environment string `json:"environment,omitempty"`
}

type WorkerScript struct {
	ID            string         `json:"id"`
	ETag          string         `json:"etag,omitempty"`
	Handlers      []string       `json:"handlers,omitempty"`
	CreatedOn     string         `json:"created_on,omitempty"`
	ModifiedOn    string         `json:"modified_on,omitempty"`
	UsageModel    string         `json:"usage_model,omitempty"`
	DeploymentID  string         `json:"deployment_id,omitempty"`
	Logpush       *bool          `json:"logpush,omitempty"`
	TailConsumers []TailConsumer `json:"tail_consumers,omitempty"`
}

func (WorkerScript) Kind() Kind           { return KindWorker }
func (w WorkerScript) Identifier() string { return w.ID }

type DeploymentVersion struct {
	VersionID  string  `json:"version_id"`
	Percentage float64 `json:"percentage"`
}

type DeploymentMetadata struct {
	CommitSHA string `json:"commit_sha,omitempty"`
	CIRunURL  string `json:"ci_run_url,omitempty"`
}

type WorkerDeployment struct {
	ID          string              `json:"id"`
	Source      string              `json:"source,omitempty"`
	Strategy    string              `json:"strategy,omitempty"`
	AuthorEmail string              `json:"author_email,omitempty"`
	AuthorID    string              `json:"author_id,omitempty"`
	CreatedOn   string              `json:"created_on,omitempty"`
	ModifiedOn  string              `json:"modified_on,omitempty"`
	Versions    []DeploymentVersion `json:"versions,omitempty"`
	Metadata    *DeploymentMetadata `json:"metadata,omitempty"`
}

func (*WorkerDeployment) EnrichmentKey() string { return "lastDeployment" }

type PagesSourceConfig struct {
	Owner              string `json:"owner,omitempty"`
	RepoName           string `json:"repo_name,omitempty"`
	ProductionBranch   string `json:"production_branch,omitempty"`
	DeploymentsEnabled *bool  `json:"deployments_enabled,omitempty"`
}

type PagesSource struct {
	Type   string             `json:"type,omitempty"`
	Config *PagesSourceConfig `json:"config,omitempty"`
}

type PagesBuildConfig struct {
	BuildCommand   string `json:"build_command,omitempty"`
	DestinationDir string `json:"destination_dir,omitempty"`
	RootDir        string `json:"root_dir,omitempty"`
}

type PagesProject struct {
	ID                  string            `json:"id,omitempty"`
	Name                string            `json:"name"`
	Subdomain           string            `json:"subdomain,omitempty"`
	Domains             []string          `json:"domains,omitempty"`
	Source              *PagesSource      `json:"source,omitempty"`
	BuildConfig         *PagesBuildConfig `json:"build_config,omitempty"`
	CreatedOn           string            `json:"created_on,omitempty"`
	ProductionBranch    string            `json:"production_branch,omitempty"`
	CanonicalDeployment *struct {
		ID  string `json:"id,omitempty"`
		URL string `json:"url,omitempty"`
	} `json:"canonical_deployment,omitempty"`
}

func (PagesProject) Kind() Kind           { return KindPages }
func (p PagesProject) Identifier() string { return p.Name }

type PagesStage struct {
	Name      string  `json:"name,omitempty"`
	Status    string  `json:"status,omitempty"`
	StartedOn *string `json:"started_on,omitempty"`
	EndedOn   *string `json:"ended_on,omitempty"`
}

type PagesDeploymentTrigger struct {
	Type     string `json:"type,omitempty"`
	Metadata *struct {
		Branch        string `json:"branch,omitempty"`
		CommitHash    string `json:"commit_hash,omitempty"`
		CommitMessage string `json:"commit_message,omitempty"`
	} `json:"metadata,omitempty"`
}

type PagesDeployment struct {
	ID                string                  `json:"id"`
	ShortID           string                  `json:"short_id,omitempty"`
	ProjectID         string                  `json:"project_id,omitempty"`
	ProjectName       string                  `json:"project_name,omitempty"`
	Environment       string                  `json:"environment"`
	URL               string                  `json:"url,omitempty"`
	CreatedOn         string                  `json:"created_on"`
	ModifiedOn        string                  `json:"modified_on,omitempty"`
	LatestStage       *PagesStage             `json:"latest_stage,omitempty"`
	DeploymentTrigger *PagesDeploymentTrigger `json:"deployment_trigger,omitempty"`
	Stages            []PagesStage            `json:"stages,omitempty"`
	BuildConfig       *PagesBuildConfig       `json:"build_config,omitempty"`
	Source            *PagesSource            `json:"source,omitempty"`
	ProductionBranch  string                  `json:"production_branch,omitempty"`
	Aliases           []string                `json:"aliases,omitempty"`
}

func (*PagesDeployment) EnrichmentKey() string { return "lastDeployment" }

type R2Bucket struct {
	Name         string `json:"name"`
	CreationDate string `json:"creation_date,omitempty"`
	Location     string `json:"location,omitempty"`
}

func (R2Bucket) Kind() Kind           { return KindR2 }
func (b R2Bucket) Identifier() string { return b.Name }

type R2LifecycleRule struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Filter *struct {
		Prefix string            `json:"prefix,omitempty"`
		Tag    map[string]string `json:"tag,omitempty"`
	} `json:"filter,omitempty"`
	Expiration *struct {
		Days *int   `json:"days,omitempty"`
		Date string `json:"date,omitempty"`
	} `json:"expiration,omitempty"`
	Transitions []struct {
		Days         *int   `json:"days,omitempty"`
		Date         string `json:"date,omitempty"`
		StorageClass string `json:"storage_class"`
	} `json:"transitions,omitempty"`
	AbortIncompleteMultipartUpload *struct {
		DaysAfterInitiation int `json:"days_after_initiation"`
	} `json:"abort_incomplete_multipart_upload,omitempty"`
}

type R2Lifecycle struct {
	Rules []R2LifecycleRule `json:"rules"`
}

func (*R2Lifecycle) EnrichmentKey() string { return "lifecycle" }

type D1Database struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	NumTables *int   `json:"num_tables,omitempty"`
	FileSize  *int64 `json:"file_size,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (D1Database) Kind() Kind           { return KindD1 }
func (d D1Database) Identifier() string { return d.UUID }

type KVNamespace struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	SupportsURLEncoding *bool  `json:"supports_url_encoding,omitempty"`
	KeysApprox          *int   `json:"keysApprox,omitempty"`
}

func (KVNamespace) Kind() Kind           { return KindKV }
func (n KVNamespace) Identifier() string { return n.ID }

type KVKey struct {
	Name       string         `json:"name"`
	Expiration *int64         `json:"expiration,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type Queue struct {
	QueueID             string   `json:"queue_id,omitempty"`
	QueueName           string   `json:"queue_name"`
	CreatedOn           string   `json:"created_on,omitempty"`
	ModifiedOn          string   `json:"modified_on,omitempty"`
	Producers           []string `json:"producers,omitempty"`
	Consumers           []string `json:"consumers,omitempty"`
	ProducersTotalCount *int     `json:"producers_total_count,omitempty"`
	ConsumersTotalCount *int     `json:"consumers_total_count,omitempty"`
}

func (Queue) Kind() Kind           { return KindQueue }
func (q Queue) Identifier() string { return q.QueueName }

type AIGateway struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Providers  []string `json:"providers,omitempty"`
	Caching    *bool    `json:"caching,omitempty"`
	Retries    *bool    `json:"retries,omitempty"`
	RateLimit  string   `json:"rate_limit,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
	ModifiedAt string   `json:"modified_at,omitempty"`
}

func (AIGateway) Kind() Kind           { return KindAIGateway }
func (g AIGateway) Identifier() string { return g.ID }

type VectorizeIndex struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Config *struct {
		Dimensions int    `json:"dimensions"`
		Metric     string `json:"metric,omitempty"`
	} `json:"config,omitempty"`
	Dimensions  *int   `json:"dimensions,omitempty"`
	Metric      string `json:"metric,omitempty"`
	VectorCount *int64 `json:"vector_count,omitempty"`
	CreatedOn   string `json:"created_on,omitempty"`
	ModifiedOn  string `json:"modified_on,omitempty"`
}

func (VectorizeIndex) Kind() Kind           { return KindVectorize }
func (v VectorizeIndex) Identifier() string { return v.Name }

type Workflow struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	ScriptName  string `json:"script_name,omitempty"`
	ClassName   string `json:"class_name,omitempty"`
	Steps       *int   `json:"steps,omitempty"`
	RetryPolicy string `json:"retry_policy,omitempty"`
	CreatedOn   string `json:"created_on,omitempty"`
	ModifiedOn  string `json:"modified_on,omitempty"`
}

func (Workflow) Kind() Kind           { return KindWorkflow }
func (w Workflow) Identifier() string { return w.Name }

type WorkflowRun struct {
	ID          string `json:"id"`
	WorkflowID  string `json:"workflow_id,omitempty"`
	Status      string `json:"status"`
	QueuedOn    string `json:"queued_on,omitempty"`
	StartedOn   string `json:"started_on,omitempty"`
	CompletedOn string `json:"completed_on,omitempty"`
	DurationMS  *int64 `json:"duration_ms,omitempty"`
	Retries     *int   `json:"retries,omitempty"`
}

func (*WorkflowRun) EnrichmentKey() string { return "lastRun" }

type DurableObjectNamespace struct {
	ID         string `json:"id,omitempty"`
	ClassName  string `json:"class_name"`
	ScriptName string `json:"script_name,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	CreatedOn  string `json:"created_on,omitempty"`
}

func (DurableObjectNamespace) Kind() Kind           { return KindDurableObject }
func (d DurableObjectNamespace) Identifier() string { return d.ClassName }

type AISearchIndex struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name"`
	Connectors []string `json:"connectors,omitempty"`
	Config     *struct {
		Sources []struct {
			Type string `json:"type"`
			URL  string `json:"url,omitempty"`
		} `json:"sources,omitempty"`
	} `json:"config,omitempty"`
	LastCrawlAt   string `json:"last_crawl_at,omitempty"`
	DocumentCount *int64 `json:"document_count,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	ModifiedAt    string `json:"modified_at,omitempty"`
}

func (AISearchIndex) Kind() Kind           { return KindAISearch }
func (a AISearchIndex) Identifier() string { return a.Name }

type HyperdriveConfig struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Origin struct {
		Database string `json:"database,omitempty"`
		Host     string `json:"host,omitempty"`
		Port     *int   `json:"port,omitempty"`
		Scheme   string `json:"scheme,omitempty"`
		User     string `json:"user,omitempty"`
	} `json:"origin"`
	Caching struct {
		Disabled *bool `json:"disabled,omitempty"`
	} `json:"caching"`
	CreatedOn  string `json:"created_on,omitempty"`
	ModifiedOn string `json:"modified_on,omitempty"`
}

func (HyperdriveConfig) Kind() Kind           { return KindHyperdrive }
func (h HyperdriveConfig) Identifier() string { return h.ID }

type ContainerApp struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name"`
	Images     []string `json:"images,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
	ModifiedAt string   `json:"modified_at,omitempty"`
}

func (ContainerApp) Kind() Kind           { return KindContainer }
func (c ContainerApp) Identifier() string { return c.Name }

type SecretsStore struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Created     string `json:"created,omitempty"`
	Modified    string `json:"modified,omitempty"`
	SecretCount *int   `json:"secret_count,omitempty"`
}

func (SecretsStore) Kind() Kind           { return KindSecretsStore }
func (s SecretsStore) Identifier() string { return s.ID }

type AnalyticsDataset struct {
	Name     string   `json:"name"`
	Bindings []string `json:"bindings,omitempty"`
	Dataset  string   `json:"dataset,omitempty"`
}

func (AnalyticsDataset) Kind() Kind           { return KindAnalyticsEngine }
func (a AnalyticsDataset) Identifier() string { return a.Name }

// BrowserRenderingQuota is account level information, not a catalog resource
type BrowserRenderingQuota struct {
	Pool  string `json:"pool,omitempty"`
	Quota string `json:"quota,omitempty"`
	Usage *struct {
		Used  *int `json:"used,omitempty"`
		Limit *int `json:"limit,omitempty"`
	} `json:"usage,omitempty"`
}

type AuditActor struct {
	Email string `json:"email,omitempty"`
	ID    string `json:"id,omitempty"`
	Type  string `json:"type,omitempty"`
}

type AuditLog struct {
	ID       string         `json:"id"`
	Actor    AuditActor     `json:"actor"`
	Action   string         `json:"action"`
	Target   string         `json:"target"`
	TS       string         `json:"ts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type AccessUser struct {
	ID                  string `json:"id"`
	Email               string `json:"email,omitempty"`
	Name                string `json:"name,omitempty"`
	AccessSeat          *bool  `json:"access_seat,omitempty"`
	GatewaySeat         *bool  `json:"gateway_seat,omitempty"`
	LastSuccessfulLogin string `json:"last_successful_login,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
}
