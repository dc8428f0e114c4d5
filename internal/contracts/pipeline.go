package contracts

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 진단 요약, 원장 row에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   S0 → S1 → S2 → S3 → S4 → S5 → S6 → S7
//   Bars/DQ  Universe  Features  Inference  Triggers  Monitoring  Gates  Publish

// Stage represents a pipeline stage
type Stage string

const (
	// StageDataQuality S0: bars manifest + DQ gate
	// 위치: internal/s0_data/
	StageDataQuality Stage = "S0_DATA_QUALITY"

	// StageUniverse S1: point-in-time universe reconstruction
	// 위치: internal/s1_universe/
	StageUniverse Stage = "S1_UNIVERSE"

	// StageFeatures S2: regime proxy, control sampling, feature build, feature policy gate
	// 위치: internal/s2_signals/
	StageFeatures Stage = "S2_FEATURES"

	// StageInference S3: scoring + MoE routing
	// 위치: internal/forecast/
	StageInference Stage = "S3_INFERENCE"

	// StageTriggers S4: hotset/watchlist/triggers/scorecard
	// 위치: internal/selection/
	StageTriggers Stage = "S4_TRIGGERS"

	// StageMonitoring S5: coverage/ECE/Brier/PSI
	// 위치: internal/monitoring/
	StageMonitoring Stage = "S5_MONITORING"

	// StageGates S6: secrecy scan + schema validation
	// 위치: internal/audit/
	StageGates Stage = "S6_GATES"

	// StagePublish S7: atomic publish, last-good, outcome ledger
	// 위치: internal/publish/, internal/outcome/
	StagePublish Stage = "S7_PUBLISH"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S0", "S1")
func (s Stage) ShortName() string {
	switch s {
	case StageDataQuality:
		return "S0"
	case StageUniverse:
		return "S1"
	case StageFeatures:
		return "S2"
	case StageInference:
		return "S3"
	case StageTriggers:
		return "S4"
	case StageMonitoring:
		return "S5"
	case StageGates:
		return "S6"
	case StagePublish:
		return "S7"
	default:
		return "UNKNOWN"
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageDataQuality,
		StageUniverse,
		StageFeatures,
		StageInference,
		StageTriggers,
		StageMonitoring,
		StageGates,
		StagePublish,
	}
}

// RunState is the orchestrator state machine position.
//
//	RUNNING → {DQ_FAIL, UNIVERSE_FAIL, ...} → DEGRADED
//	RUNNING → PUBLISHED
type RunState string

const (
	StateRunning            RunState = "RUNNING"
	StateDQFail             RunState = "DQ_FAIL"
	StateUniverseFail       RunState = "UNIVERSE_FAIL"
	StateFeaturePolicyFail  RunState = "FEATURE_POLICY_FAIL"
	StateMissingPredictions RunState = "MISSING_PREDICTIONS"
	StateMonitoringFail     RunState = "MONITORING_FAIL"
	StateSecrecyFail        RunState = "SECRECY_FAIL"
	StateSchemaFail         RunState = "SCHEMA_FAIL"
	StateDegraded           RunState = "DEGRADED"
	StatePublished          RunState = "PUBLISHED"
)

// IsFailure reports whether the state is one of the gate failure states
func (s RunState) IsFailure() bool {
	switch s {
	case StateDQFail, StateUniverseFail, StateFeaturePolicyFail, StateMissingPredictions,
		StateMonitoringFail, StateSecrecyFail, StateSchemaFail:
		return true
	}
	return false
}

// GateFailure is a recoverable failure: the run degrades instead of aborting.
type GateFailure struct {
	State  RunState `json:"state"`
	Stage  Stage    `json:"stage"`
	Reason string   `json:"reason"`
}
