package mappers

import (
	"github.com/healthfees-org/cloudflare-backstage.io/catalog"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/shared"
)

func itemType(resource shared.Resource) shared.ItemType {
	return shared.NewItemType(cloudflare.Source, resource)
}

var descriptors = map[cloudflare.Kind]descriptor{
	cloudflare.KindWorker: {
		itemType: itemType("worker"), prefix: "cf-worker", label: "Cloudflare Worker",
		tags: []string{"cloudflare", "worker"},
	},
	cloudflare.KindPages: {
		itemType: itemType("pages"), prefix: "cf-pages", label: "Cloudflare Pages",
		tags: []string{"cloudflare", "pages"},
	},
	cloudflare.KindR2: {
		itemType: itemType("r2"), prefix: "cf-r2", label: "Cloudflare R2 Bucket",
		tags: []string{"cloudflare", "r2", "storage"},
	},
	cloudflare.KindD1: {
		itemType: itemType("d1"), prefix: "cf-d1", label: "Cloudflare D1 Database",
		tags: []string{"cloudflare", "d1", "database"},
	},
	cloudflare.KindKV: {
		itemType: itemType("kv"), prefix: "cf-kv", label: "Cloudflare KV Namespace",
		tags: []string{"cloudflare", "kv", "storage"},
	},
	cloudflare.KindQueue: {
		itemType: itemType("queue"), prefix: "cf-queue", label: "Cloudflare Queue",
		tags: []string{"cloudflare", "queue"},
	},
	cloudflare.KindAIGateway: {
		itemType: itemType("ai-gateway"), prefix: "cf-ai-gateway", label: "Cloudflare AI Gateway",
		tags: []string{"cloudflare", "ai-gateway"},
	},
	cloudflare.KindVectorize: {
		itemType: itemType("vectorize"), prefix: "cf-vectorize", label: "Cloudflare Vectorize Index",
		tags: []string{"cloudflare", "vectorize", "ai"},
	},
	cloudflare.KindWorkflow: {
		itemType: itemType("workflow"), prefix: "cf-workflow", label: "Cloudflare Workflow",
		tags: []string{"cloudflare", "workflow"},
	},
	cloudflare.KindDurableObject: {
		itemType: itemType("durable-object"), prefix: "cf-do", label: "Cloudflare Durable Object",
		tags: []string{"cloudflare", "durable-object"},
	},
	cloudflare.KindAISearch: {
		itemType: itemType("ai-search"), prefix: "cf-ai-search", label: "Cloudflare AI Search",
		tags: []string{"cloudflare", "ai-search"},
	},
	cloudflare.KindHyperdrive: {
		itemType: itemType("hyperdrive"), prefix: "cf-hyperdrive", label: "Cloudflare Hyperdrive",
		tags: []string{"cloudflare", "hyperdrive", "database"},
	},
	cloudflare.KindContainer: {
		itemType: itemType("container"), prefix: "cf-container", label: "Cloudflare Container",
		tags: []string{"cloudflare", "container"},
	},
	cloudflare.KindSecretsStore: {
		itemType: itemType("secrets-store"), prefix: "cf-secrets-store", label: "Cloudflare Secrets Store",
		tags: []string{"cloudflare", "secrets-store"},
	},
	cloudflare.KindAnalyticsEngine: {
		itemType: itemType("analytics-engine"), prefix: "cf-analytics", label: "Cloudflare Analytics Engine Dataset",
		tags: []string{"cloudflare", "analytics-engine"},
	},
}

var table = map[cloudflare.Kind]MapFunc{
	cloudflare.KindWorker:          enriched(cloudflare.KindWorker, mapWorker),
	cloudflare.KindPages:           enriched(cloudflare.KindPages, mapPages),
	cloudflare.KindR2:              enriched(cloudflare.KindR2, mapR2),
	cloudflare.KindD1:              plain(cloudflare.KindD1, mapD1),
	cloudflare.KindKV:              plain(cloudflare.KindKV, mapKV),
	cloudflare.KindQueue:           plain(cloudflare.KindQueue, mapQueue),
	cloudflare.KindAIGateway:       plain(cloudflare.KindAIGateway, mapAIGateway),
	cloudflare.KindVectorize:       plain(cloudflare.KindVectorize, mapVectorize),
	cloudflare.KindWorkflow:        enriched(cloudflare.KindWorkflow, mapWorkflow),
	cloudflare.KindDurableObject:   plain(cloudflare.KindDurableObject, mapDurableObject),
	cloudflare.KindAISearch:        plain(cloudflare.KindAISearch, mapAISearch),
	cloudflare.KindHyperdrive:      plain(cloudflare.KindHyperdrive, mapHyperdrive),
	cloudflare.KindContainer:       plain(cloudflare.KindContainer, mapContainer),
	cloudflare.KindSecretsStore:    plain(cloudflare.KindSecretsStore, mapSecretsStore),
	cloudflare.KindAnalyticsEngine: plain(cloudflare.KindAnalyticsEngine, mapAnalyticsDataset),
}

func mapWorker(cfg Config, script cloudflare.WorkerScript, deployment *cloudflare.WorkerDeployment) *catalog.Entity {
	entity := descriptors[cloudflare.KindWorker].entity(cfg, script.ID, script.ID)

	params := newParameters(cfg).
		str("scriptName", script.ID).
		str("usageModel", script.UsageModel).
		str("createdOn", script.CreatedOn).
		str("modifiedOn", script.ModifiedOn).
		optionalList("handlers", script.Handlers)
	optional(params, "logpush", script.Logpush)

	if deployment != nil {
		last := parameters{}.
			str("id", deployment.ID).
			str("createdOn", deployment.CreatedOn).
			str("source", deployment.Source).
			str("authorEmail", deployment.AuthorEmail)
		if deployment.Metadata != nil {
			last.str("commitSha", deployment.Metadata.CommitSHA).
				str("ciRunUrl", deployment.Metadata.CIRunURL)
		}
		params.nested("lastDeployment", last.toMap())
	}

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapPages(cfg Config, project cloudflare.PagesProject, deployment *cloudflare.PagesDeployment) *catalog.Entity {
	entity := descriptors[cloudflare.KindPages].entity(cfg, project.Name, project.Name)

	params := newParameters(cfg).
		str("projectName", project.Name).
		str("subdomain", project.Subdomain).
		list("domains", project.Domains).
		str("productionBranch", project.ProductionBranch).
		str("createdOn", project.CreatedOn)
	if project.Source != nil && project.Source.Config != nil {
		params.str("repository", joinRepo(project.Source.Config.Owner, project.Source.Config.RepoName))
	}

	if deployment != nil {
		last := parameters{}.
			str("id", deployment.ID).
			str("environment", deployment.Environment).
			str("createdOn", deployment.CreatedOn).
			str("url", deployment.URL)
		if deployment.LatestStage != nil {
			last.str("status", deployment.LatestStage.Status)
		}
		if t := deployment.DeploymentTrigger; t != nil && t.Metadata != nil {
			last.str("commitHash", t.Metadata.CommitHash).
				str("branch", t.Metadata.Branch)
		}
		params.nested("lastDeployment", last.toMap())
	}

	entity.Spec.Parameters = params.toMap()
	return entity
}

func joinRepo(owner, repo string) string {
	if owner == "" || repo == "" {
		return ""
	}
	return owner + "/" + repo
}

func mapR2(cfg Config, bucket cloudflare.R2Bucket, lifecycle *cloudflare.R2Lifecycle) *catalog.Entity {
	entity := descriptors[cloudflare.KindR2].entity(cfg, bucket.Name, bucket.Name)

	params := newParameters(cfg).
		str("bucketName", bucket.Name).
		str("creationDate", bucket.CreationDate).
		str("location", bucket.Location)

	if lifecycle != nil {
		rules := make([]map[string]any, 0, len(lifecycle.Rules))
		for _, rule := range lifecycle.Rules {
			r := parameters{}.str("id", rule.ID).str("status", rule.Status)
			if rule.Filter != nil {
				r.str("prefix", rule.Filter.Prefix)
			}
			if rule.Expiration != nil {
				optional(r, "expirationDays", rule.Expiration.Days)
				r.str("expirationDate", rule.Expiration.Date)
			}
			rules = append(rules, r.toMap())
		}
		params["lifecycle"] = map[string]any{"rules": rules}
	}

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapD1(cfg Config, db cloudflare.D1Database) *catalog.Entity {
	entity := descriptors[cloudflare.KindD1].entity(cfg, db.UUID, db.Name)

	params := newParameters(cfg).
		str("uuid", db.UUID).
		str("name", db.Name).
		str("createdAt", db.CreatedAt).
		str("version", db.Version)
	optional(params, "numTables", db.NumTables)
	optional(params, "fileSize", db.FileSize)

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapKV(cfg Config, ns cloudflare.KVNamespace) *catalog.Entity {
	entity := descriptors[cloudflare.KindKV].entity(cfg, ns.ID, ns.Title)

	params := newParameters(cfg).
		str("namespaceId", ns.ID).
		str("title", ns.Title)
	optional(params, "keysApprox", ns.KeysApprox)
	optional(params, "supportsUrlEncoding", ns.SupportsURLEncoding)

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapQueue(cfg Config, q cloudflare.Queue) *catalog.Entity {
	entity := descriptors[cloudflare.KindQueue].entity(cfg, q.QueueName, q.QueueName)

	entity.Spec.Parameters = newParameters(cfg).
		str("queueName", q.QueueName).
		str("queueId", q.QueueID).
		str("createdOn", q.CreatedOn).
		str("modifiedOn", q.ModifiedOn).
		list("producers", q.Producers).
		list("consumers", q.Consumers).
		toMap()
	return entity
}

func mapAIGateway(cfg Config, g cloudflare.AIGateway) *catalog.Entity {
	display := g.Name
	if display == "" {
		display = g.ID
	}
	entity := descriptors[cloudflare.KindAIGateway].entity(cfg, g.ID, display)

	params := newParameters(cfg).
		str("gatewayId", g.ID).
		str("name", g.Name).
		optionalList("providers", g.Providers).
		str("rateLimit", g.RateLimit)
	optional(params, "caching", g.Caching)
	optional(params, "retries", g.Retries)

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapVectorize(cfg Config, index cloudflare.VectorizeIndex) *catalog.Entity {
	entity := descriptors[cloudflare.KindVectorize].entity(cfg, index.Name, index.Name)

	dimensions := index.Dimensions
	metric := index.Metric
	if index.Config != nil {
		if dimensions == nil {
			dimensions = &index.Config.Dimensions
		}
		if metric == "" {
			metric = index.Config.Metric
		}
	}

	params := newParameters(cfg).
		str("indexName", index.Name).
		str("metric", metric).
		str("createdOn", index.CreatedOn)
	optional(params, "dimensions", dimensions)
	optional(params, "vectorCount", index.VectorCount)

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapWorkflow(cfg Config, wf cloudflare.Workflow, run *cloudflare.WorkflowRun) *catalog.Entity {
	entity := descriptors[cloudflare.KindWorkflow].entity(cfg, wf.Name, wf.Name)

	params := newParameters(cfg).
		str("workflowId", wf.ID).
		str("name", wf.Name).
		str("scriptName", wf.ScriptName).
		str("className", wf.ClassName).
		str("retryPolicy", wf.RetryPolicy)
	optional(params, "steps", wf.Steps)

	if run != nil {
		last := parameters{}.
			str("id", run.ID).
			str("status", run.Status).
			str("queuedOn", run.QueuedOn).
			str("startedOn", run.StartedOn).
			str("completedOn", run.CompletedOn)
		optional(last, "durationMs", run.DurationMS)
		params.nested("lastRun", last.toMap())
	}

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapDurableObject(cfg Config, do cloudflare.DurableObjectNamespace) *catalog.Entity {
	entity := descriptors[cloudflare.KindDurableObject].entity(cfg, do.ClassName, do.ClassName)

	entity.Spec.Parameters = newParameters(cfg).
		str("className", do.ClassName).
		str("scriptName", do.ScriptName).
		str("namespace", do.Namespace).
		str("namespaceId", do.ID).
		toMap()
	return entity
}

func mapAISearch(cfg Config, index cloudflare.AISearchIndex) *catalog.Entity {
	entity := descriptors[cloudflare.KindAISearch].entity(cfg, index.Name, index.Name)

	params := newParameters(cfg).
		str("indexName", index.Name).
		optionalList("connectors", index.Connectors).
		str("lastCrawlAt", index.LastCrawlAt)
	optional(params, "documentCount", index.DocumentCount)

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapHyperdrive(cfg Config, h cloudflare.HyperdriveConfig) *catalog.Entity {
	display := h.Name
	if display == "" {
		display = h.ID
	}
	entity := descriptors[cloudflare.KindHyperdrive].entity(cfg, h.ID, display)

	origin := parameters{}.
		str("host", h.Origin.Host).
		str("database", h.Origin.Database).
		str("scheme", h.Origin.Scheme)
	optional(origin, "port", h.Origin.Port)

	params := newParameters(cfg).
		str("configId", h.ID).
		str("name", h.Name).
		nested("origin", origin.toMap())
	if h.Caching.Disabled != nil {
		params["cachingEnabled"] = !*h.Caching.Disabled
	}

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapContainer(cfg Config, app cloudflare.ContainerApp) *catalog.Entity {
	entity := descriptors[cloudflare.KindContainer].entity(cfg, app.Name, app.Name)

	entity.Spec.Parameters = newParameters(cfg).
		str("applicationId", app.ID).
		str("name", app.Name).
		optionalList("images", app.Images).
		str("createdAt", app.CreatedAt).
		toMap()
	return entity
}

func mapSecretsStore(cfg Config, store cloudflare.SecretsStore) *catalog.Entity {
	display := store.Name
	if display == "" {
		display = store.ID
	}
	entity := descriptors[cloudflare.KindSecretsStore].entity(cfg, store.ID, display)

	params := newParameters(cfg).
		str("storeId", store.ID).
		str("name", store.Name).
		str("created", store.Created)
	optional(params, "secretCount", store.SecretCount)

	entity.Spec.Parameters = params.toMap()
	return entity
}

func mapAnalyticsDataset(cfg Config, ds cloudflare.AnalyticsDataset) *catalog.Entity {
	entity := descriptors[cloudflare.KindAnalyticsEngine].entity(cfg, ds.Name, ds.Name)

	entity.Spec.Parameters = newParameters(cfg).
		str("datasetName", ds.Name).
		str("dataset", ds.Dataset).
		optionalList("bindings", ds.Bindings).
		toMap()
	return entity
}
