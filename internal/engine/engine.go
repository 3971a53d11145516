// Package engine is the turn-resolution core: it takes one player action
// per turn and produces a new, internally consistent world state while
// treating the content oracle as an unreliable collaborator.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"fableturn/internal/memory"
	"fableturn/internal/oracle"
	"fableturn/internal/store"
	"fableturn/pkg/entity"
	"fableturn/pkg/outcome"
)

// surpriseChance escalates a certain action to full resolution.
const surpriseChance = 0.05

// defaultActionDuration is assumed when an outcome declares no duration.
const defaultActionDuration = 5

// travelDuration is charged for moving between locations.
const travelDuration = 15

var (
	movementRe = regexp.MustCompile(`(?i)^(?:go|move|travel|walk|run)\s+(?:to\s+)?(?:the\s+)?(.+)$`)
	instantRe  = regexp.MustCompile(`(?i)^(?:check|look|inventory|recall|remember|think)\b`)
	hoursRe    = regexp.MustCompile(`(?i)(?:sleep|wait|rest)\s+(?:for\s+)?(\d+)\s*(?:hours?|h)\b`)
	minutesRe  = regexp.MustCompile(`(?i)(?:sleep|wait|rest)\s+(?:for\s+)?(\d+)\s*(?:minutes?|mins?)\b`)
)

// Config wires an Engine.
type Config struct {
	Store    store.Store
	Oracle   oracle.Oracle
	Recall   memory.Recall
	GameID   string
	DBPath   string
	SavesDir string
	Rand     rand.Source
	Logger   *slog.Logger
}

// Engine is the turn orchestrator. Turns are strictly sequential; the
// engine is the sole mutator of the store for its session.
type Engine struct {
	mu sync.Mutex

	store  store.Store
	oracle oracle.Oracle
	recall memory.Recall
	logger *slog.Logger

	gameID   string
	dbPath   string
	savesDir string

	session SessionState

	resolver      *Resolver
	sanitizer     *Sanitizer
	ripple        *Ripple
	simulator     *Simulator
	interpreter   *Interpreter
	gate          *PlausibilityGate
	agency        *Agency
	narrator      *Narrator
	instantiator  *Instantiator
	opportunities *Opportunities
}

// New creates an engine bound to an open store and restores session state
// from it.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Recall == nil {
		cfg.Recall = memory.NullRecall{}
	}
	e := &Engine{
		store:    cfg.Store,
		oracle:   cfg.Oracle,
		recall:   cfg.Recall,
		logger:   cfg.Logger,
		gameID:   cfg.GameID,
		dbPath:   cfg.DBPath,
		savesDir: cfg.SavesDir,
		session:  SessionState{GameID: cfg.GameID},
		resolver: NewResolver(cfg.Rand),
	}
	e.rebind()
	if err := loadSession(ctx, e.store, &e.session); err != nil {
		return nil, err
	}
	return e, nil
}

// rebind recreates every collaborator holding a store reference. Called at
// construction and after a snapshot restore swaps the store handle.
func (e *Engine) rebind() {
	e.sanitizer = NewSanitizer(e.store, e.oracle, e.logger)
	e.ripple = NewRipple(e.store, e.logger)
	e.simulator = NewSimulator(e.store, e.logger)
	e.interpreter = NewInterpreter(e.oracle, e.logger)
	e.gate = NewPlausibilityGate(e.oracle, e.logger)
	e.agency = NewAgency(e.oracle, e.store, e.logger)
	e.narrator = NewNarrator(e.oracle, e.logger)
	e.instantiator = NewInstantiator(e.oracle, e.store, e.logger)
	e.opportunities = NewOpportunities(e.oracle, e.resolver, e.logger)
}

// Session returns a copy of the current session state.
func (e *Engine) Session() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// turnContext is everything loaded once at the top of a turn.
type turnContext struct {
	player   *entity.Entity
	location *entity.Entity
	present  []*entity.Entity // sentient non-player entities at the location
}

func (e *Engine) loadTurnContext(ctx context.Context) (*turnContext, error) {
	players, err := e.store.EntitiesByType(ctx, entity.TypePlayer)
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("no player entity in world")
	}
	tc := &turnContext{player: players[0]}

	if locID := tc.player.State.CurrentLocationID; locID != "" {
		tc.location, err = e.store.GetEntity(ctx, locID)
		if err != nil {
			return nil, fmt.Errorf("loading player location: %w", err)
		}
		occupants, err := e.store.EntitiesInLocation(ctx, locID)
		if err != nil {
			return nil, fmt.Errorf("loading location occupants: %w", err)
		}
		for _, o := range occupants {
			if o.ID != tc.player.ID && o.IsSentient() {
				tc.present = append(tc.present, o)
			}
		}
	}
	return tc, nil
}

// ProcessInput resolves one player action into a turn result. The player
// always receives narrative text: oracle and validation failures degrade
// into generic narration, never errors, except when the store itself
// fails.
func (e *Engine) ProcessInput(ctx context.Context, input string, isGenesis bool) (*outcome.TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !isGenesis {
		if _, err := e.store.Snapshot(e.gameID, e.session.Turn); err != nil {
			e.logger.Warn("Pre-turn snapshot failed, undo for this turn unavailable", "error", err)
		}
	}
	e.session.Turn++
	turn := e.session.Turn
	log := e.logger.With("turn", turn)

	tc, err := e.loadTurnContext(ctx)
	if err != nil {
		return nil, err
	}

	// Instant commands bypass interpretation entirely.
	if result, ok, err := e.handleInstantCommand(ctx, tc, input, turn); ok || err != nil {
		return result, err
	}

	interp := e.interpreter.Interpret(ctx, input, tc.location, tc.present)
	log.Debug("Interpreted input", "understanding", interp.Understanding, "complexity", interp.Complexity)

	if interp.Understanding != UnderstandingClear {
		explanation := interp.Explanation
		if explanation == "" {
			explanation = "You hesitate, unsure what you meant to do."
		}
		result := &outcome.TurnResult{Narrative: explanation, WorldStateDelta: map[string]any{}}
		return result, e.finishTurn(ctx, tc, result, "confusion", 0)
	}

	for _, missing := range interp.MissingEntities {
		locID := ""
		if tc.location != nil {
			locID = tc.location.ID
		}
		if _, err := e.instantiator.CreateSkeleton(ctx, missing.Name, missing.Type, locID, e.session.Genre); err != nil {
			log.Warn("Skeleton instantiation failed", "name", missing.Name, "error", err)
		}
	}

	// Movement fast-path: trivial movement resolves without an outcome
	// oracle call.
	if m := movementRe.FindStringSubmatch(interp.NormalizedInput); m != nil && interp.Complexity == ComplexityTrivial {
		if result, handled := e.moveFastPath(ctx, tc, m[1], turn); handled {
			return result, nil
		}
		if interp.TravelIntent && interp.TargetLocation != "" {
			return e.travel(ctx, tc, interp.TargetLocation, turn)
		}
		result := &outcome.TurnResult{
			Narrative:       fmt.Sprintf("You can't get to %s from here.", m[1]),
			WorldStateDelta: map[string]any{},
		}
		return result, e.finishTurn(ctx, tc, result, "move", 0)
	}
	if interp.TravelIntent && interp.TargetLocation != "" {
		return e.travel(ctx, tc, interp.TargetLocation, turn)
	}

	if ok, refusal := e.gate.Check(ctx, interp.NormalizedInput, e.session.Genre, tc.location); !ok {
		result := &outcome.TurnResult{Narrative: refusal, WorldStateDelta: map[string]any{}}
		return result, e.finishTurn(ctx, tc, result, "refusal", 0)
	}

	certain := interp.Complexity == ComplexityTrivial
	if certain && e.resolver.Chance(surpriseChance) {
		log.Debug("Surprise escalation to full resolution")
		certain = false
	}

	var sel outcome.Outcome
	if certain {
		sel = outcome.Outcome{
			OutcomeType:      outcome.TypeSuccess,
			NarrativeSummary: fmt.Sprintf("You %s without incident.", interp.NormalizedInput),
			DurationMinutes:  defaultActionDuration,
		}
	} else {
		sel = e.resolveUncertain(ctx, tc, interp)
	}

	// NPC agency runs on both paths so idle NPCs still act.
	npcActions := e.agency.Resolve(ctx, tc.present, interp.NormalizedInput, sel, e.session.Clock)
	sel.NPCActions = npcActions

	if !certain {
		targetID, witnesses := e.rippleParticipants(tc, sel)
		e.ripple.Apply(ctx, sel, tc.player.ID, targetID, witnesses, turn)
	}

	var ambient string
	if tick := e.opportunities.AmbientTick(ctx, tc.player, tc.location, e.session.Genre, e.session.Clock, turn); tick != nil {
		ambient = tick.Description
	}

	recent, err := e.store.RecentNarratives(ctx, 2)
	if err != nil {
		log.Warn("Recent narration load failed", "error", err)
	}
	narrative, tokens := e.narrator.Narrate(ctx, narrationRequest{
		Input:        interp.NormalizedInput,
		Outcome:      sel,
		NPCActions:   npcActions,
		Location:     tc.location,
		Present:      tc.present,
		Genre:        e.session.Genre,
		Recent:       recent,
		AmbientEvent: ambient,
	})

	if !certain {
		narrative = e.sanitizer.ValidateNarrative(ctx, narrative, tc.present, recent)
		e.sanitizer.CheckRetroactiveCausality(ctx, narrative)
		e.extractFromNarrative(ctx, tc, narrative)
	}

	duration := e.resolveDuration(input, sel)
	advance, err := e.simulator.AdvanceTime(ctx, duration, e.session.Clock)
	if err != nil {
		return nil, fmt.Errorf("advancing time: %w", err)
	}
	if advance.Interrupt != nil && advance.Actual < advance.Requested {
		narrative = fmt.Sprintf("%s\n\nBefore you finish, %s", narrative, advance.Interrupt.Reason())
	}
	e.session.Clock += advance.Actual

	delta := e.commitDelta(ctx, tc, sel)

	result := &outcome.TurnResult{
		Narrative:       narrative,
		Consequences:    []outcome.Outcome{sel},
		WorldStateDelta: delta,
		TokensUsed:      tokens,
	}
	actionType := "action"
	if instantRe.MatchString(interp.NormalizedInput) {
		actionType = "look"
	}
	if err := e.finishTurn(ctx, tc, result, actionType, duration); err != nil {
		return nil, err
	}
	e.writeMemories(ctx, tc, interp.NormalizedInput, interp.ReferencedEntities, sel, turn)
	return result, nil
}

// resolveUncertain runs the full cognitive path: spectrum, selection,
// sanitization, structural gate.
func (e *Engine) resolveUncertain(ctx context.Context, tc *turnContext, interp *ActionInterpretation) outcome.Outcome {
	fallback := outcome.Outcome{
		OutcomeType:      outcome.TypeFailure,
		NarrativeSummary: fmt.Sprintf("You try to %s, but nothing comes of it.", interp.NormalizedInput),
		DurationMinutes:  defaultActionDuration,
	}

	recallHits, err := e.recall.Search(ctx, e.gameID, tc.player.ID, interp.NormalizedInput)
	if err != nil {
		e.logger.Warn("Recall lookup failed", "error", err)
	}
	if len(recallHits) > 3 {
		recallHits = recallHits[:3]
	}

	resp, err := e.oracle.Generate(ctx, buildSpectrumPrompt(interp.NormalizedInput, tc.player, tc.location, tc.present, e.session.Genre, recallHits), oracle.RoleCreative, oracle.Options{
		Temperature:    0.8,
		ResponseFormat: oracle.FormatJSON,
	})
	if err != nil {
		e.logger.Warn("Spectrum call failed, using fallback outcome", "error", err)
		return fallback
	}

	var spectrum outcome.Spectrum
	if err := oracle.DecodeJSON(resp.Text, &spectrum); err != nil {
		// Some responses come back as a bare outcome instead of a spectrum.
		var single outcome.Outcome
		if err2 := oracle.DecodeJSON(resp.Text, &single); err2 == nil && single.OutcomeType != "" {
			spectrum.PossibleOutcomes = []outcome.Outcome{single}
		} else {
			e.logger.Warn("Spectrum response unparseable, using fallback outcome", "error", err)
			return fallback
		}
	}

	valid := e.resolver.Curate(spectrum.PossibleOutcomes)
	if len(valid) == 0 {
		e.logger.Warn("Spectrum empty after curation, using fallback outcome")
		return fallback
	}
	sel := e.resolver.Select(valid)

	sel.WorldStateChanges = e.sanitizer.Sanitize(ctx, sel.WorldStateChanges, append(tc.present, tc.player))
	if ok, reason := e.sanitizer.ValidateStructure(ctx, sel.WorldStateChanges); !ok {
		e.logger.Warn("State change rejected by structural validation", "reason", reason)
		sel.WorldStateChanges = nil
	}
	return sel
}

// rippleParticipants derives the ripple target and witnesses from the
// selected outcome and the cast present.
func (e *Engine) rippleParticipants(tc *turnContext, sel outcome.Outcome) (string, []string) {
	presentIDs := make(map[string]bool, len(tc.present))
	for _, n := range tc.present {
		presentIDs[n.ID] = true
	}

	targetID := ""
	for _, id := range sel.AffectedEntities {
		if id != tc.player.ID && presentIDs[id] {
			targetID = id
			break
		}
	}

	var witnesses []string
	for _, n := range tc.present {
		if n.ID != targetID {
			witnesses = append(witnesses, n.ID)
		}
	}
	return targetID, witnesses
}

func (e *Engine) extractFromNarrative(ctx context.Context, tc *turnContext, narrative string) {
	locID := ""
	if tc.location != nil {
		locID = tc.location.ID
	}
	known := make([]string, 0, len(tc.present)+1)
	for _, n := range tc.present {
		known = append(known, n.DisplayName())
	}
	if tc.location != nil {
		known = append(known, tc.location.DisplayName())
	}
	e.instantiator.ExtractNewEntities(ctx, narrative, locID, known, tc.player.DisplayName())
}

// resolveDuration applies the precedence: explicit time expressions in the
// raw input beat the outcome's declared duration; instant verbs cost
// nothing.
func (e *Engine) resolveDuration(rawInput string, sel outcome.Outcome) int {
	if instantRe.MatchString(strings.TrimSpace(rawInput)) {
		return 0
	}
	if m := hoursRe.FindStringSubmatch(rawInput); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n * 60
		}
	}
	if m := minutesRe.FindStringSubmatch(rawInput); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if sel.DurationMinutes > 0 {
		return sel.DurationMinutes
	}
	return defaultActionDuration
}

// commitDelta merges the selected outcome's state changes into the store
// and returns the delta for the turn result. Player and per-entity state
// are shallow-merged; time is the simulator's business and skipped here.
func (e *Engine) commitDelta(ctx context.Context, tc *turnContext, sel outcome.Outcome) map[string]any {
	delta := map[string]any{}
	for key, value := range sel.WorldStateChanges {
		switch key {
		case "time":
			continue
		case "opportunities":
			delta[key] = value
			continue
		case "npc", "location", "item", "object":
			nested, ok := value.(map[string]any)
			if !ok {
				continue
			}
			for id, changes := range nested {
				if strings.Contains(id, "_") {
					e.mergeEntityState(ctx, id, changes)
				}
			}
			delta[key] = value
		default:
			// Player changes apply to the in-hand record, which persists
			// below; a store round-trip here would be clobbered by it.
			if key == tc.player.ID {
				if fields, ok := value.(map[string]any); ok {
					if nested, ok := fields["state"].(map[string]any); ok {
						applyStateFields(&tc.player.State, nested)
					}
					applyStateFields(&tc.player.State, fields)
				}
			} else {
				e.mergeEntityState(ctx, key, value)
			}
			delta[key] = value
		}
	}

	// Opportunity mutations live on the player record and persist with it.
	e.opportunities.ExpireStale(tc.player, e.session.Clock, e.session.Turn)
	if err := e.store.UpdateEntity(ctx, tc.player.ID, tc.player); err != nil {
		e.logger.Warn("Player persist failed", "error", err)
	}
	return delta
}

// mergeEntityState shallow-merges a change payload into an entity's state.
func (e *Engine) mergeEntityState(ctx context.Context, id string, changes any) {
	fields, ok := changes.(map[string]any)
	if !ok {
		return
	}
	ent, err := e.store.GetEntity(ctx, id)
	if err != nil || ent == nil {
		e.logger.Warn("Delta names unloadable entity, dropping", "entity_id", id, "error", err)
		return
	}

	if nested, ok := fields["state"].(map[string]any); ok {
		applyStateFields(&ent.State, nested)
	}
	applyStateFields(&ent.State, fields)

	if err := e.store.UpdateEntity(ctx, id, ent); err != nil {
		e.logger.Warn("Delta persist failed", "entity_id", id, "error", err)
	}
}

func applyStateFields(st *entity.State, fields map[string]any) {
	for k, v := range fields {
		s, isString := v.(string)
		switch k {
		case "current_location_id", "location":
			if isString {
				st.CurrentLocationID = s
			}
		case "health_status", "health":
			if isString {
				st.HealthStatus = s
			}
		case "emotional_state", "mood":
			if isString {
				st.EmotionalState = s
			}
		}
	}
}

// finishTurn fans the narrative out to every observer in the final
// location, persists session counters, and records player recall.
func (e *Engine) finishTurn(ctx context.Context, tc *turnContext, result *outcome.TurnResult, actionType string, duration int) error {
	locID := tc.player.State.CurrentLocationID

	observers := []string{tc.player.ID}
	if locID != "" {
		occupants, err := e.store.EntitiesInLocation(ctx, locID)
		if err != nil {
			e.logger.Warn("Observer listing failed", "error", err)
		}
		for _, o := range occupants {
			if o.IsSentient() && o.ID != tc.player.ID {
				observers = append(observers, o.ID)
			}
		}
	}

	for _, obs := range observers {
		err := e.store.AppendEvent(ctx, &store.EventLogEntry{
			TurnNumber: e.session.Turn,
			LocationID: locID,
			ObserverID: obs,
			ActionType: actionType,
			EventData: map[string]any{
				"narrative":        result.Narrative,
				"duration_minutes": duration,
			},
		})
		if err != nil {
			return fmt.Errorf("logging turn event: %w", err)
		}
	}

	if err := e.store.AppendEvent(ctx, &store.EventLogEntry{
		TurnNumber: e.session.Turn,
		LocationID: locID,
		ObserverID: tc.player.ID,
		ActionType: "NARRATION",
		EventData:  map[string]any{"narrative": result.Narrative},
	}); err != nil {
		return fmt.Errorf("logging narration: %w", err)
	}

	return saveSession(ctx, e.store, &e.session)
}

// writeMemories appends a short memory line to every participant NPC and
// mirrors it into recall. Participants are the sentient entities present
// plus any referenced NPC the interpreter resolved, wherever it is.
// Best-effort.
func (e *Engine) writeMemories(ctx context.Context, tc *turnContext, input string, referenced []string, sel outcome.Outcome, turn int) {
	line := fmt.Sprintf("[Turn %d] %s -> %s", turn, input, sel.NarrativeSummary)

	if err := e.recall.Record(ctx, e.gameID, tc.player.ID, line); err != nil {
		e.logger.Warn("Player recall write failed", "error", err)
	}

	seen := map[string]bool{tc.player.ID: true}
	participants := make([]string, 0, len(tc.present)+len(referenced))
	for _, n := range tc.present {
		if !seen[n.ID] {
			seen[n.ID] = true
			participants = append(participants, n.ID)
		}
	}
	for _, ref := range referenced {
		ent := e.resolveReference(ctx, ref)
		if ent == nil || !ent.IsSentient() || seen[ent.ID] {
			continue
		}
		seen[ent.ID] = true
		participants = append(participants, ent.ID)
	}

	for _, id := range participants {
		// Reload: agency, ripple, and the delta merge may have changed the
		// stored record since the turn context was taken.
		npc, err := e.store.GetEntity(ctx, id)
		if err != nil || npc == nil {
			e.logger.Warn("NPC reload for memory write failed", "npc_id", id, "error", err)
			continue
		}
		npc.Memories = append(npc.Memories, line)
		if err := e.store.UpdateEntity(ctx, npc.ID, npc); err != nil {
			e.logger.Warn("NPC memory write failed", "npc_id", npc.ID, "error", err)
			continue
		}
		if err := e.recall.Record(ctx, e.gameID, npc.ID, line); err != nil {
			e.logger.Warn("NPC recall write failed", "npc_id", npc.ID, "error", err)
		}
	}
}

// resolveReference loads an interpreter-referenced entity, which may arrive
// as an id or a name.
func (e *Engine) resolveReference(ctx context.Context, ref string) *entity.Entity {
	ent, err := e.store.GetEntity(ctx, ref)
	if err != nil {
		e.logger.Warn("Referenced entity load failed", "ref", ref, "error", err)
		return nil
	}
	if ent != nil {
		return ent
	}
	matches, err := e.store.FindByName(ctx, ref)
	if err != nil {
		e.logger.Warn("Referenced entity lookup failed", "ref", ref, "error", err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// Undo restores the previous turn's snapshot. Returns false when no such
// snapshot exists, leaving the live store untouched. A restore I/O failure
// after the live handle is closed is recovered by reopening the previous
// store; if that also fails the error is fatal.
func (e *Engine) Undo(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := e.session.Turn - 1
	if target < 0 {
		return false, nil
	}
	snapPath := filepath.Join(e.savesDir, fmt.Sprintf("%s-%d.db", e.gameID, target))
	if _, err := os.Stat(snapPath); err != nil {
		return false, nil
	}

	if err := e.store.Close(); err != nil {
		return false, fmt.Errorf("closing live store: %w", err)
	}

	restoreErr := store.Restore(e.savesDir, e.gameID, target, e.dbPath)
	reopened, openErr := store.NewSQLiteStore(ctx, e.dbPath, e.savesDir, e.logger)
	if openErr != nil {
		return false, fmt.Errorf("store unrecoverable after undo: %w", openErr)
	}
	e.store = reopened
	e.rebind()
	if restoreErr != nil {
		// The previous live store reopened fine; report the failed undo.
		return false, fmt.Errorf("restoring snapshot: %w", restoreErr)
	}

	if err := loadSession(ctx, e.store, &e.session); err != nil {
		return false, err
	}
	e.logger.Info("Restored snapshot", "turn", e.session.Turn)
	return true, nil
}

// ResetWorld clears all entities, events, relationships, recall memory and
// session counters.
func (e *Engine) ResetWorld(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.ClearWorld(ctx); err != nil {
		return err
	}
	if err := e.recall.Reset(ctx, e.gameID); err != nil {
		e.logger.Warn("Recall reset failed", "error", err)
	}
	e.session.Turn = 0
	e.session.Clock = 0
	return saveSession(ctx, e.store, &e.session)
}

// InjectGenesisNarrative records the opening narration as a turn-zero
// event so it participates in continuity checks and recall.
func (e *Engine) InjectGenesisNarrative(ctx context.Context, narrative string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tc, err := e.loadTurnContext(ctx)
	if err != nil {
		return err
	}
	locID := tc.player.State.CurrentLocationID
	if err := e.store.AppendEvent(ctx, &store.EventLogEntry{
		TurnNumber: 0,
		LocationID: locID,
		ObserverID: tc.player.ID,
		ActionType: "NARRATION",
		EventData:  map[string]any{"narrative": narrative},
	}); err != nil {
		return fmt.Errorf("logging genesis narration: %w", err)
	}
	if err := e.recall.Record(ctx, e.gameID, tc.player.ID, "[Turn 0] "+narrative); err != nil {
		e.logger.Warn("Genesis recall write failed", "error", err)
	}
	return nil
}
