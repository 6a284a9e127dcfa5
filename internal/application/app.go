// Package application wires the domain kernel, decision pipeline, memory
// stack, plugin hooks, and persistence into one runnable agent — the
// composition root every entrypoint (CLI, REPL, future gateway) drives.
package application

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/ngoclaw/ngoclaw/gateway/pkg/errors"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/memory"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/repository"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/service"
	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/valueobject"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/embedding"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/llm"
	_ "github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/llm/openai" // registers the "openai"-compatible provider factory
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/persistence"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/plugin"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/sandbox"
	tooladapter "github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/tool"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/vectorstore"
)

// runID identifies the single agent instance a CLI process drives. A future
// multi-tenant entrypoint would derive this per session instead.
const runID = "default"

// App is the composition root: every collaborator the kernel loop needs,
// wired once at startup and reused across every Run.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	sandbox     *sandbox.ProcessSandbox
	tools       domaintool.Registry
	policy      *domaintool.Policy
	provider    llm.Provider
	modelConfig valueobject.ModelConfig

	skills        *memory.SkillStore
	failures      *memory.FailureStore
	karma         *memory.KarmaStore
	hierarchical  *memory.HierarchicalMemory
	memoryManager *memory.MemoryManager
	extensions    *plugin.ExtensionRegistry
	pluginLoader  *plugin.Loader

	stateRepo     repository.StateRepository
	selfModelRepo repository.SelfModelRepository

	history  *service.ChatHistory
	kernel   *service.Kernel
	pipeline *service.DecisionPipeline
}

// New builds the full collaborator graph described by the runtime's core
// subsystems (kernel, decision pipeline, memory stack, plugin hooks,
// persistence) from cfg, ready for Run to be called.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	if err := a.buildSandbox(); err != nil {
		return nil, fmt.Errorf("build sandbox: %w", err)
	}
	if err := a.buildTools(); err != nil {
		return nil, fmt.Errorf("build tools: %w", err)
	}
	if err := a.buildProvider(); err != nil {
		return nil, fmt.Errorf("build LLM provider: %w", err)
	}
	a.buildMemory()
	if err := a.buildPersistence(); err != nil {
		return nil, fmt.Errorf("build persistence: %w", err)
	}
	a.buildKernel()
	a.restoreState(context.Background())

	return a, nil
}

func (a *App) buildSandbox() error {
	sbxCfg := sandbox.DefaultConfig()
	if a.cfg.Agent.Workspace != "" {
		sbxCfg.WorkDir = a.cfg.Agent.Workspace
	}
	sbx, err := sandbox.NewProcessSandbox(sbxCfg, a.logger)
	if err != nil {
		return err
	}
	a.sandbox = sbx
	return nil
}

func (a *App) buildTools() error {
	a.tools = domaintool.NewInMemoryRegistry()
	if err := tooladapter.RegisterBuiltins(a.tools, a.sandbox, a.logger); err != nil {
		return err
	}
	a.policy = &domaintool.Policy{
		DenyList:    a.cfg.Agent.Security.DenyList,
		AskMode:     a.cfg.Agent.AskMode,
		MaxExecTime: int(a.cfg.Agent.Runtime.ToolTimeout.Seconds()),
	}

	a.extensions = plugin.NewExtensionRegistry(a.logger)
	if err := a.buildPlugins(); err != nil {
		a.logger.Warn("plugin loader unavailable, continuing without dynamic plugins", zap.Error(err))
	}
	return nil
}

// buildPlugins wires the hot-reloadable plugin loader: every subdirectory of
// ~/.ngoclaw/plugins carrying a plugin.json is loaded at startup and its
// exported tool registered into the same registry the kernel dispatches
// against, appearing indistinguishable from a built-in tool.
func (a *App) buildPlugins() error {
	loaderCfg := &plugin.LoaderConfig{
		PluginDir:     filepath.Join(config.HomeDir(), "plugins"),
		EnableHotLoad: true,
	}
	loader, err := plugin.NewLoader(loaderCfg, a.logger)
	if err != nil {
		return err
	}
	plugin.RegisterBuiltinPlugins(loader)

	registrar := tooladapter.NewRegistryAdapter(a.tools, domaintool.KindExecute)
	loader.SetCallbacks(
		func(name string) { a.registerPluginTool(loader, registrar, name) },
		func(name string) { a.extensions.UnregisterPluginTools(name, registrar) },
		func(name string) { a.registerPluginTool(loader, registrar, name) },
	)

	if err := loader.LoadAll(context.Background()); err != nil {
		return err
	}
	if err := loader.StartWatching(context.Background()); err != nil {
		a.logger.Warn("plugin hot-reload watcher unavailable", zap.Error(err))
	}

	a.pluginLoader = loader
	return nil
}

// registerPluginTool exposes a loaded plugin's Execute method as one dynamic
// tool named after the plugin — plugins this runtime knows are single-purpose
// by construction (ScriptPlugin, ToolPlugin), so one tool per plugin is exact.
func (a *App) registerPluginTool(loader *plugin.Loader, registrar *tooladapter.RegistryAdapter, name string) {
	inst, ok := loader.Get(name)
	if !ok {
		return
	}
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"input": map[string]interface{}{"type": "string", "description": "input passed to the plugin"},
		},
	}
	handler := func(args map[string]interface{}) (string, error) {
		out, err := inst.Execute(context.Background(), args)
		if err != nil {
			return "", err
		}
		if s, ok := out["output"].(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", out), nil
	}
	if err := a.extensions.RegisterToolFromPlugin(name, name, "plugin: "+inst.Name(), schema, handler, registrar); err != nil {
		a.logger.Warn("failed to register plugin tool", zap.String("plugin", name), zap.Error(err))
	}
}

func (a *App) buildProvider() error {
	if len(a.cfg.Agent.Providers) == 0 {
		return apperrors.NewInvalidInputError("no agent.providers configured")
	}
	// The lowest Priority value wins; ties keep declaration order.
	best := a.cfg.Agent.Providers[0]
	for _, p := range a.cfg.Agent.Providers[1:] {
		if p.Priority < best.Priority {
			best = p
		}
	}

	provider, err := llm.CreateProvider(llm.ProviderConfig{
		Type:    best.Type,
		Name:    best.Name,
		BaseURL: best.BaseURL,
		APIKey:  best.APIKey,
		Models:  best.Models,
	}, a.logger)
	if err != nil {
		return apperrors.NewInternalErrorWithCause("create LLM provider", err)
	}
	a.provider = provider

	model := a.cfg.Agent.DefaultModel
	if model == "" && len(best.Models) > 0 {
		model = best.Models[0]
	}
	a.modelConfig = valueobject.NewModelConfig(best.Type, model, 8000, 0.3, 0.95, false)
	return nil
}

func (a *App) buildMemory() {
	var embedder memory.EmbeddingProvider
	if a.cfg.Memory.Enabled {
		if e, err := embedding.NewOllamaEmbedder(a.cfg.Memory.OllamaURL, a.cfg.Memory.EmbedModel, a.logger); err != nil {
			a.logger.Warn("embedding provider unavailable, memory retrieval falls back to substring match", zap.Error(err))
		} else {
			embedder = e
		}
	}

	a.skills = memory.NewSkillStore(embedder)
	a.failures = memory.NewFailureStore(embedder)
	a.hierarchical = memory.NewHierarchicalMemory(memory.DefaultHierarchicalMemoryConfig())

	// The karma store and its Seven-Factor decision pipeline only make sense
	// once embeddings are available — karmic wisdom retrieval has no
	// substring fallback (see KarmaStore.Retrieve).
	if a.cfg.Agent.DecisionMode == "seven_factor" && embedder != nil {
		a.karma = memory.NewKarmaStore(embedder)
	}

	// The remember/recall tools need both a vector store and an embedder.
	// Prefer the LanceDB-backed store when configured and reachable; fall
	// back to an in-process store (with a deterministic hash embedder if no
	// real one is configured) so the tools are always available.
	var store memory.VectorStore
	if embedder != nil && a.cfg.Memory.StoreType == "lancedb" {
		if lance, err := vectorstore.NewLanceDBVectorStore(a.cfg.Memory.StorePath, embedder.Dimension(), a.logger); err != nil {
			a.logger.Warn("lancedb vector store unavailable, falling back to in-memory store", zap.Error(err))
		} else {
			store = lance
		}
	}
	if store == nil {
		store = memory.NewInMemoryVectorStore()
	}
	if embedder == nil {
		embedder = memory.NewSimpleEmbedder(64)
	}
	a.memoryManager = memory.NewMemoryManager(store, embedder)

	if err := a.hierarchical.Load(a.cfg.Memory.StorePath); err != nil {
		a.logger.Warn("failed to load hierarchical memory snapshot", zap.Error(err))
	}

	if err := tooladapter.RegisterMemoryTools(a.tools, a.memoryManager, a.logger); err != nil {
		a.logger.Warn("failed to register memory tools", zap.Error(err))
	}
}

func (a *App) buildPersistence() error {
	switch a.cfg.Agent.Persist.Backend {
	case "gorm":
		db, err := persistence.NewDBConnection(&a.cfg.Database)
		if err != nil {
			return err
		}
		a.stateRepo = persistence.NewGormStateRepository(db)
		a.selfModelRepo = persistence.NewGormSelfModelRepository(db)
	default:
		a.stateRepo = persistence.NewFileStateRepository(a.cfg.Agent.Persist.Dir, a.cfg.Agent.Persist.MinInterval)
		a.selfModelRepo = persistence.NewFileSelfModelRepository(a.cfg.Agent.Persist.Dir)
	}
	return nil
}

func (a *App) buildKernel() {
	kc := service.KernelConfig{
		MaxSteps:               a.cfg.Agent.MaxSteps,
		MaxOutputChars:         a.modelConfig.MaxTokens(),
		Temperature:            a.modelConfig.Temperature(),
		Model:                  a.modelConfig.Model(),
		MaxRetries:             a.cfg.Agent.Runtime.MaxRetries,
		RetryBaseWait:          a.cfg.Agent.Runtime.RetryBaseWait,
		MaxParallelTools:       4,
		MaxTokenBudget:         a.cfg.Agent.Runtime.MaxTokenBudget,
		MaxRunDuration:         a.cfg.Agent.Runtime.RunTimeout,
		ToolTimeout:            a.cfg.Agent.Runtime.ToolTimeout,
		ContextMaxTokens:       a.cfg.Agent.Guardrails.ContextMaxTokens,
		ContextWarnRatio:       a.cfg.Agent.Guardrails.ContextWarnRatio,
		ContextHardRatio:       a.cfg.Agent.Guardrails.ContextHardRatio,
		LoopWindowSize:         a.cfg.Agent.Guardrails.LoopWindowSize,
		LoopThreshold:          a.cfg.Agent.Guardrails.LoopThreshold,
		LoopNameThreshold:      a.cfg.Agent.Guardrails.LoopNameThreshold,
		SufferingGateThreshold: a.cfg.Agent.Guardrails.SufferingGateThresh,
	}
	if kc.MaxSteps <= 0 {
		kc.MaxSteps = service.DefaultKernelConfig().MaxSteps
	}

	a.kernel = service.NewKernel(a.provider, a.tools, a.policy, kc, a.skills, a.failures, a.karma, a.hierarchical, a.logger)

	onVeto := func(toolName, reason string) {
		a.logger.Warn("sila hook vetoed action", zap.String("tool", toolName), zap.String("reason", reason))
	}
	a.kernel.Hooks().Add(&service.LoggingHook{})
	a.kernel.Hooks().Add(&service.MetricsHook{})
	a.kernel.Hooks().Add(service.NewSilaHook(a.cfg.Agent.Security.DenyList, a.cfg.Agent.Security.MaxVetoes, onVeto))
	a.kernel.Hooks().Add(service.NewDanaHook(runID))
	a.kernel.Hooks().Add(service.NewViryaHook("synthesize_tool", service.DefaultSourceDenyList()))

	a.history = service.NewChatHistory()
	a.kernel.SetResultObserver(a.history.RecordResult)

	a.pipeline = service.NewDecisionPipeline(a.provider, a.tools, a.skills, a.failures, a.karma, a.kernel.SelfModel(), a.history, kc, a.logger)

	gate := a.cfg.Agent.Guardrails.SufferingGateThresh
	if gate <= 0 {
		gate = 0.6
	}
	a.kernel.SetEvolver(service.NewSelfEvolver(a.buildProposeFn(), gate, 0.5, a.logger))
}

// buildProposeFn asks the LLM to propose one evolution step from the
// self-model's tool statistics and suffering trend; a degraded reply (or an
// LLM error) is treated as "nothing to propose" rather than aborting.
func (a *App) buildProposeFn() service.ProposeFunc {
	return func(ctx context.Context, model *entity.SelfModel) (entity.EvolutionRecord, bool, error) {
		var b strings.Builder
		b.WriteString("Reviewing this run's tool statistics and suffering trend, propose exactly one ")
		b.WriteString("concrete change to strategy (a tool preference adjustment naming the tool, or an ")
		b.WriteString("approach hint), or reply NONE if nothing warrants changing.\n\nTool stats:\n")
		for name, st := range model.ToolStats {
			fmt.Fprintf(&b, "- %s: %d uses, %d successes, %d failures, avg suffering delta %.2f\n",
				name, st.Uses, st.Successes, st.Failures, st.AvgSufferingDelta)
		}
		b.WriteString("\nRespond with a single short sentence describing the change, or NONE.")

		out, err := a.provider.Complete(ctx, b.String())
		if err != nil {
			return entity.EvolutionRecord{}, false, err
		}
		trimmed := strings.TrimSpace(out)
		if trimmed == "" || strings.EqualFold(trimmed, "NONE") {
			return entity.EvolutionRecord{}, false, nil
		}

		recType := service.EvolutionTypeApproachShift
		lower := strings.ToLower(trimmed)
		for name := range model.ToolStats {
			if strings.Contains(lower, strings.ToLower(name)) {
				recType = service.EvolutionTypeToolPreference
				break
			}
		}

		rec := entity.EvolutionRecord{
			Change:     trimmed,
			Reason:     "self-evolution cycle over accumulated tool statistics",
			Type:       recType,
			Confidence: 0.6,
		}
		return rec, true, nil
	}
}

func (a *App) restoreState(ctx context.Context) {
	if model, err := a.selfModelRepo.Load(ctx, runID); err != nil {
		a.logger.Warn("failed to load self-model", zap.Error(err))
	} else if model != nil {
		a.kernel.RestoreSelfModel(model)
	}
}

// RunResult is what the CLI/REPL layer renders after one goal-directed run.
type RunResult struct {
	Agent     *service.AgentResult
	Events    []entity.AgentEvent
	SelfModel *entity.SelfModel
}

// Run drives the kernel loop to completion against one goal, judging
// milestone reach with the same LLM that drives decisions, and persists
// state/self-model afterward regardless of outcome.
func (a *App) Run(ctx context.Context, goalDescription string, successCriteria []string, milestones []entity.Milestone) (*RunResult, error) {
	goal, err := entity.NewGoal(goalDescription, successCriteria...)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	runner := service.NewMilestoneRunner(milestones, a.judgeMilestone, a.resetContext, a.logger)
	a.kernel.SetMilestoneRunner(runner)

	result, events, runErr := a.kernel.Run(ctx, *goal, milestones, a.observe, a.pipeline.Decide)

	a.persistRun(ctx, goal, result)

	if runErr != nil {
		return &RunResult{Agent: result, Events: events, SelfModel: a.kernel.SelfModel()}, runErr
	}
	return &RunResult{Agent: result, Events: events, SelfModel: a.kernel.SelfModel()}, nil
}

// observe captures the workspace's top-level listing as the Snapshot the
// kernel's loop reasons about. A directory listing is cheap and gives both
// the milestone runner's resource-token check and the LLM's delta
// computation a real view of progress made via the filesystem tools.
func (a *App) observe(ctx context.Context) (entity.Snapshot, error) {
	workDir := a.sandbox.GetWorkDir()
	listing := ""
	if res, err := a.sandbox.ExecuteShell(ctx, "ls -la"); err == nil {
		listing = strings.TrimSpace(res.Stdout)
	}
	return entity.Snapshot{
		"workspace": workDir,
		"listing":   listing,
		"time":      time.Now().Format(time.RFC3339),
	}, nil
}

// judgeMilestone asks the LLM to semantically confirm a milestone whose
// resource tokens are already present in the snapshot.
func (a *App) judgeMilestone(ctx context.Context, m entity.Milestone, snapshot entity.Snapshot) (bool, error) {
	prompt := fmt.Sprintf(
		"Milestone: %s\nCurrent workspace state: %s\n\nHas this milestone genuinely been reached? Reply with exactly YES or NO.",
		m.Description, snapshot.String(),
	)
	out, err := a.provider.Complete(ctx, prompt)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(out)), "YES"), nil
}

// resetContext performs the context-reset boundary's side effects: clear
// the pipeline's raw chat history (failure/skill knowledge survives via
// their own stores) and consolidate hierarchical memory.
func (a *App) resetContext(ctx context.Context) error {
	a.history.Clear()
	a.hierarchical.Consolidate()
	return a.hierarchical.Save(a.cfg.Memory.StorePath)
}

func (a *App) persistRun(ctx context.Context, goal *entity.Goal, result *service.AgentResult) {
	if result != nil {
		state := &repository.AgentState{
			RunID:           runID,
			GoalDescription: goal.Description(),
			Step:            result.TotalSteps,
			LastDelta:       &result.FinalDelta,
			Failures:        a.failures.ExportCurrent(),
			TanhaFlagged:    result.TanhaFlagged,
			UpdatedAt:       time.Now().Unix(),
		}
		if err := a.stateRepo.Save(ctx, state); err != nil {
			a.logger.Warn("failed to persist agent state", zap.Error(err))
		}
	}
	if err := a.selfModelRepo.Save(ctx, runID, a.kernel.SelfModel()); err != nil {
		a.logger.Warn("failed to persist self-model", zap.Error(err))
	}
}

// Kernel exposes the underlying kernel for progress inspection (CLI
// rendering reads StateMachine()/GetToolNames() off of it).
func (a *App) Kernel() *service.Kernel { return a.kernel }

// ToolNames returns every registered tool's name, for the CLI banner.
func (a *App) ToolNames() []string { return a.kernel.GetToolNames() }

// Logger returns the shared structured logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Stop requests the in-flight run (if any) stop at its next safe boundary.
func (a *App) Stop() { a.kernel.Stop() }

// Shutdown flushes outstanding state and releases sandbox resources.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.hierarchical.Save(a.cfg.Memory.StorePath); err != nil {
		a.logger.Warn("failed to save hierarchical memory on shutdown", zap.Error(err))
	}
	if a.pluginLoader != nil {
		if err := a.pluginLoader.Close(); err != nil {
			a.logger.Warn("failed to close plugin loader", zap.Error(err))
		}
	}
	return a.sandbox.Cleanup()
}
