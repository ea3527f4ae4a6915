package pipeline

// Name identifiers used as span names when tracing is enabled. Kept in one
// place so the pipeline.step[N] names shown in a trace backend match the
// order steps are wired in cmd/server/main.go.

func (s *requireSessionStep) Name() string            { return "pipeline.require_session" }
func (s *enforceDeviceBindingStep) Name() string       { return "pipeline.enforce_device_binding" }
func (s *continuousAccessEvaluationStep) Name() string { return "pipeline.continuous_access_evaluation" }
func (s *riskThrottleStep) Name() string               { return "pipeline.risk_throttle" }
func (s *buildPolicyInputStep) Name() string           { return "pipeline.build_policy_input" }
func (s *opaAuthorizeStep) Name() string               { return "pipeline.opa_authorize" }
func (s *auditDecisionStep) Name() string              { return "pipeline.audit_decision" }
