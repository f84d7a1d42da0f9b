package domain

// Scenario 结果分类
type Scenario string

const (
	ScenarioWin  Scenario = "WIN"  // 单槽命中
	ScenarioLoss Scenario = "LOSS" // 单槽未命中
	ScenarioA    Scenario = "A"    // 双槽：高目标命中
	ScenarioB    Scenario = "B"    // 双槽：只有 defesa 命中
	ScenarioC    Scenario = "C"    // 双槽：全部未命中
)

// Action 会话对每个结果给出的动作
type Action string

const (
	ActionAguardar  Action = "aguardar"
	ActionApostar   Action = "apostar"
	ActionFinalizar Action = "finalizar"
	ActionParar     Action = "parar"
)

// SessionState 会话状态
type SessionState string

const (
	StateAguardandoGatilho SessionState = "AGUARDANDO_GATILHO"
	StateEmMartingale      SessionState = "EM_MARTINGALE"
	StateFinalizado        SessionState = "FINALIZADO"
)

// SessionOutcome 会话结束方式
type SessionOutcome string

const (
	OutcomeWin     SessionOutcome = "WIN"
	OutcomeParar   SessionOutcome = "PARAR"
	OutcomeBust    SessionOutcome = "BUST"
	OutcomeAborted SessionOutcome = "ABORTED"
)
