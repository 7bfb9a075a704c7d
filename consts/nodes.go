package consts

const (
	// 输入信号节点
	ImageAnalysis   = "image_analysis"
	MarketData      = "market_data"
	SignalMerge     = "signal_merge"
	IndicatorEngine = "indicators"
	WebSearch       = "web_search"

	// 决策节点
	Suggestion = "suggestion"
	Scoring    = "scoring"

	// 非节点阶段，仅用于错误记录
	RequestStage  = "request"
	PipelineStage = "pipeline"
)

// PipelineStages lists the stages in execution order.
var PipelineStages = []string{
	ImageAnalysis,
	MarketData,
	IndicatorEngine,
	WebSearch,
	Suggestion,
	Scoring,
}

const GraphName = "trade_decision_pipeline"
