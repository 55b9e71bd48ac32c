// Command wardengate wires the detection pipeline (pkg/gateway) to a
// concrete HTTP surface, embedder, reasoner, and persistence sink. The
// core pipeline itself has no HTTP dependency; this binary is the
// reference integration spec.md's "out of scope" note describes as an
// external collaborator, built here only because a real repository is
// expected to ship one.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardengate/wardengate/pkg/config"
	"github.com/wardengate/wardengate/pkg/gateway"
	"github.com/wardengate/wardengate/pkg/persist"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var policyPath string
	var addr string
	var local bool
	var highSecurity bool
	var postgresDSN string

	cmd := &cobra.Command{
		Use:   "wardengate",
		Short: "Staged prompt/response inspection gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.SetEnvPrefix("WARDENGATE")
			v.AutomaticEnv()
			v.SetDefault("addr", addr)
			v.SetDefault("policy_path", policyPath)
			v.SetDefault("postgres_dsn", postgresDSN)

			var cfg *config.Config
			switch {
			case local:
				cfg = config.NewLocalConfig()
			case highSecurity:
				cfg = config.NewHighSecurityConfig()
			default:
				cfg = config.NewDefaultConfig()
			}

			return run(cmd.Context(), cfg, v.GetString("policy_path"), v.GetString("addr"), v.GetString("postgres_dsn"))
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "", "path to the policy YAML file (optional; defaults apply if unset)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&local, "local", false, "use local-development defaults (Ollama reasoner)")
	cmd.Flags().BoolVar(&highSecurity, "high-security", false, "use stricter default thresholds")
	cmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "Postgres DSN for the verdict audit sink (optional; no DSN means no persistence)")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, policyPath, addr, postgresDSN string) error {
	embedder := buildEmbedder()

	pipelineCfg := gateway.DefaultPipelineConfig()
	pipelineCfg.Guard.MaxRaw = cfg.MaxRaw
	pipelineCfg.Guard.Window = cfg.Window
	pipelineCfg.Guard.PatternCap = cfg.PatternCap
	pipelineCfg.Guard.VectorCap = cfg.VectorCap
	pipelineCfg.CacheCapacity = cfg.CacheCapacity
	if cfg.LLMProvider == config.ProviderNone {
		pipelineCfg.Tiers.T3Enabled = false
	}

	var pf *gateway.PolicyFile
	if policyPath != "" {
		loaded, err := gateway.LoadPolicyFile(policyPath)
		if err != nil {
			return fmt.Errorf("load policy file: %w", err)
		}
		pf = loaded
	}

	buildCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	snapshot, err := gateway.BuildSnapshot(buildCtx, pf, embedder, "")
	if err != nil {
		return fmt.Errorf("build initial snapshot: %w", err)
	}
	store := gateway.NewSnapshotStore(snapshot)

	var reasoner gateway.Reasoner
	if cfg.LLMProvider != config.ProviderNone && cfg.LLMBaseURL != "" {
		reasoner = gateway.NewHTTPReasoner(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, pipelineCfg.ReasonBudget)
	}

	recorder := buildRecorder(ctx, postgresDSN)

	metrics := gateway.NewMetrics()
	orch := gateway.NewOrchestrator(pipelineCfg, store, embedder, reasoner, nil, recorder, metrics)

	log.Printf("wardengate listening on %s (reasoner=%v, recorder=%v)", addr, reasoner != nil, recorder != nil)
	return serve(addr, orch)
}

// buildRecorder connects the optional Postgres audit sink when a DSN is
// configured, the same graceful-degradation posture buildEmbedder and the
// reasoner construction above take: absence of configuration means "skip
// this collaborator", never a startup failure.
func buildRecorder(ctx context.Context, dsn string) gateway.Recorder {
	if dsn == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Printf("persist: failed to connect to postgres, disabling audit sink: %v", err)
		return nil
	}
	rec := persist.NewPostgresRecorder(pool)
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rec.EnsureSchema(schemaCtx); err != nil {
		log.Printf("persist: failed to ensure schema, disabling audit sink: %v", err)
		pool.Close()
		return nil
	}
	return rec
}

// buildEmbedder returns a hugot-backed LocalEmbedder when a model path is
// configured in the environment, falling back to the deterministic
// HashEmbedder otherwise — the same auto-detect-then-degrade posture the
// teacher's local_embedder.go takes.
func buildEmbedder() gateway.EmbeddingProvider {
	modelPath := os.Getenv("WARDENGATE_EMBEDDING_MODEL_PATH")
	if modelPath == "" {
		return gateway.NewEmbeddingMemo(gateway.NewHashEmbedder(64), 4096)
	}
	le := gateway.NewLocalEmbedder(gateway.LocalEmbedderConfig{ModelPath: modelPath})
	if !le.IsReady() {
		log.Printf("local embedding model at %s not ready, falling back to hash embedder", modelPath)
		return gateway.NewEmbeddingMemo(gateway.NewHashEmbedder(64), 4096)
	}
	return gateway.NewEmbeddingMemo(le, 4096)
}
