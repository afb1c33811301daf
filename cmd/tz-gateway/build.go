package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tensorzero/tensorzero-sub023/cache"
	cachememory "github.com/tensorzero/tensorzero-sub023/cache/memory"
	cacheredis "github.com/tensorzero/tensorzero-sub023/cache/redis"
	"github.com/redis/go-redis/v9"

	"github.com/tensorzero/tensorzero-sub023/config"
	"github.com/tensorzero/tensorzero-sub023/function"
	"github.com/tensorzero/tensorzero-sub023/inference"
	"github.com/tensorzero/tensorzero-sub023/internal/circuitbreaker"
	"github.com/tensorzero/tensorzero-sub023/persist"
	"github.com/tensorzero/tensorzero-sub023/providers"
	"github.com/tensorzero/tensorzero-sub023/router"
	"github.com/tensorzero/tensorzero-sub023/store"
	"github.com/tensorzero/tensorzero-sub023/store/clickhouse"
	"github.com/tensorzero/tensorzero-sub023/store/postgres"
	"github.com/tensorzero/tensorzero-sub023/template"
	"github.com/tensorzero/tensorzero-sub023/variant"
)

// buildPipeline wires a config.Config into a fully constructed
// inference.Pipeline: credentials resolve to provider clients, models
// resolve to ordered router bindings, variants wrap those bindings in an
// execution strategy, and functions tie variants together under an
// experimentation policy.
func buildPipeline(ctx context.Context, cfg config.Config) (*inference.Pipeline, func() error, error) {
	tokens, err := config.ResolveAll(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	engine := template.New()
	for fnName, fn := range cfg.Functions {
		for vName, v := range fn.Variants {
			if v.Template == "" {
				continue
			}
			if err := engine.Compile(vName, v.Template, fn.InputSchema); err != nil {
				return nil, nil, fmt.Errorf("build: compiling template for %s/%s: %w", fnName, vName, err)
			}
		}
	}

	modelBindings := make(map[string][]router.Binding, len(cfg.Models))
	for name, m := range cfg.Models {
		bindings, err := buildBindings(name, m, tokens)
		if err != nil {
			return nil, nil, err
		}
		modelBindings[name] = bindings
	}

	variants := make(map[string]variant.Variant)
	specs := make([]function.Spec, 0, len(cfg.Functions))
	for fnName, fn := range cfg.Functions {
		varConfigs := make([]function.VariantConfig, 0, len(fn.Variants))
		for vName, v := range fn.Variants {
			varConfigs = append(varConfigs, function.VariantConfig{Name: vName, Weight: v.Weight})
			ex, err := buildVariant(vName, v, modelBindings, engine)
			if err != nil {
				return nil, nil, err
			}
			variants[vName] = ex
		}
		specs = append(specs, function.Spec{
			Name:         fnName,
			Type:         function.Type(fn.Type),
			Variants:     varConfigs,
			InputSchema:  fn.InputSchema,
			OutputSchema: fn.OutputSchema,
			Policy:       fn.Policy,
		})
	}

	registry, err := function.NewRegistry(specs)
	if err != nil {
		return nil, nil, err
	}

	inferenceCache, err := buildCache(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	facade, closeStore, err := buildStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	writer := persist.New(facade, persist.Config{
		ChannelSize: cfg.Persistence.ChannelSize,
		FlushWindow: cfg.Persistence.FlushWindow,
	})

	pipeline := &inference.Pipeline{
		Functions: registry,
		Variants:  variants,
		Engine:    engine,
		Cache:     inferenceCache,
		CacheMax:  cfg.Cache.MaxAge,
		Persist:   writer,
	}

	closeAll := func() error { return closeStore() }
	return pipeline, closeAll, nil
}

func buildBindings(modelName string, m config.ModelConfig, tokens map[string]string) ([]router.Binding, error) {
	bindings := make([]router.Binding, 0, len(m.Providers))
	for _, pb := range m.Providers {
		p, err := newProvider(pb, tokens)
		if err != nil {
			return nil, fmt.Errorf("build: model %s: %w", modelName, err)
		}

		var cb *circuitbreaker.CircuitBreaker
		if pb.CircuitBreaker != nil {
			timeout, _ := time.ParseDuration(pb.CircuitBreaker.Timeout)
			cb = circuitbreaker.New(pb.CircuitBreaker.FailureThreshold, pb.CircuitBreaker.SuccessThreshold, timeout)
		}
		timeout, _ := time.ParseDuration(pb.Timeout)

		bindings = append(bindings, router.Binding{
			Name:           pb.Provider + "/" + pb.ModelName,
			Provider:       p,
			ModelName:      pb.ModelName,
			MaxRetries:     pb.Retry.Attempts,
			Timeout:        timeout,
			CircuitBreaker: cb,
		})
	}
	return bindings, nil
}

func newProvider(pb config.ProviderBinding, tokens map[string]string) (providers.Provider, error) {
	key := tokens[pb.Credential]
	switch pb.Provider {
	case "openai":
		return providers.NewOpenAI(key, pb.BaseURL)
	case "anthropic":
		return providers.NewAnthropic(key, pb.BaseURL)
	case "bedrock":
		return providers.NewBedrock(pb.BaseURL)
	case "gemini":
		return providers.NewGemini(key, pb.BaseURL)
	case "groq":
		return providers.NewGroq(key, pb.BaseURL)
	case "mistral":
		return providers.NewMistral(key, pb.BaseURL)
	case "cohere":
		return providers.NewCohere(key, pb.BaseURL)
	case "deepseek":
		return providers.NewDeepSeek(key, pb.BaseURL)
	case "together":
		return providers.NewTogether(key, pb.BaseURL)
	case "fireworks":
		return providers.NewFireworks(key, pb.BaseURL)
	case "perplexity":
		return providers.NewPerplexity(key, pb.BaseURL)
	case "ai21":
		return providers.NewAI21(key, pb.BaseURL)
	case "ollama":
		return providers.NewOllama(pb.BaseURL, []string{pb.ModelName})
	default:
		return nil, fmt.Errorf("unknown provider %q", pb.Provider)
	}
}

func buildVariant(name string, v config.VariantConfig, modelBindings map[string][]router.Binding, engine *template.Engine) (variant.Variant, error) {
	switch v.Type {
	case "", "chat_completion":
		var bindings []router.Binding
		for _, m := range v.Models {
			bindings = append(bindings, modelBindings[m]...)
		}
		return variant.NewChatCompletion(name, bindings, engine), nil

	case "best_of_n":
		candidates, err := resolveCandidates(v.Candidates, modelBindings)
		if err != nil {
			return nil, err
		}
		return variant.NewBestOfN(name, candidates, modelBindings[v.Judge]), nil

	case "mixture_of_n":
		candidates, err := resolveCandidates(v.Candidates, modelBindings)
		if err != nil {
			return nil, err
		}
		return variant.NewMixtureOfN(name, candidates, modelBindings[v.Judge]), nil

	case "dicl":
		embedBindings := modelBindings[v.EmbeddingModel]
		var bindings []router.Binding
		for _, m := range v.Models {
			bindings = append(bindings, modelBindings[m]...)
		}
		k := v.K
		if k <= 0 {
			k = 3
		}
		retriever := &variant.InMemoryRetriever{}
		embed := embedderFor(embedBindings)
		return variant.NewDynamicInContextLearning(name, bindings, retriever, embed, k), nil

	default:
		return nil, fmt.Errorf("build: unknown variant type %q", v.Type)
	}
}

func resolveCandidates(names []string, modelBindings map[string][]router.Binding) ([][]router.Binding, error) {
	candidates := make([][]router.Binding, 0, len(names))
	for _, n := range names {
		candidates = append(candidates, modelBindings[n])
	}
	return candidates, nil
}

// embedderFor adapts the first embedding-capable binding into a
// variant.Embedder closure. If none of the bindings support embeddings
// (the bulk of chat-only providers don't), the returned closure always
// errors — a variant can still be constructed, it simply can't retrieve
// examples until a real embedding-capable model is configured.
func embedderFor(bindings []router.Binding) variant.Embedder {
	var ep providers.EmbeddingProvider
	model := ""
	for _, b := range bindings {
		if e, ok := b.Provider.(providers.EmbeddingProvider); ok {
			ep = e
			model = b.ModelName
			break
		}
	}
	return func(ctx context.Context, text string) ([]float64, error) {
		if ep == nil {
			return nil, fmt.Errorf("dicl: embedding_model has no embedding-capable provider bound")
		}
		resp, err := ep.Embed(ctx, providers.EmbeddingRequest{Model: model, Input: text})
		if err != nil || len(resp.Data) == 0 {
			return nil, fmt.Errorf("dicl: embedding request failed: %w", err)
		}
		return resp.Data[0].Embedding, nil
	}
}

func buildCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "", "disabled":
		return nil, nil
	case "memory":
		capacity := cfg.Capacity
		if capacity <= 0 {
			capacity = 10_000
		}
		return cachememory.New(capacity), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
		return cacheredis.New(client, "tz:cache:", cfg.MaxAge), nil
	default:
		return nil, fmt.Errorf("build: unknown cache backend %q", cfg.Backend)
	}
}

func buildStore(cfg config.StoreConfig) (*store.Facade, func() error, error) {
	primary, err := openBackend(cfg.Primary)
	if err != nil {
		return nil, nil, fmt.Errorf("build: opening primary store: %w", err)
	}
	var secondary store.Backend
	if cfg.Secondary != nil {
		secondary, err = openBackend(*cfg.Secondary)
		if err != nil {
			return nil, nil, fmt.Errorf("build: opening secondary store: %w", err)
		}
	}
	facade := store.NewFacade(primary, secondary)
	return facade, facade.Close, nil
}

func openBackend(cfg config.BackendConfig) (store.Backend, error) {
	switch cfg.Driver {
	case "clickhouse":
		return clickhouse.Open(cfg.DSN)
	case "postgres":
		return postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
