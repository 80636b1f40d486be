package thread

// Cost accumulates a thread's consumption across turns.
type Cost struct {
	Turns          int     `json:"turns"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	Spend          float64 `json:"spend"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	SpawnCount     int     `json:"spawn_count"`
}

// TotalTokens is the combined input and output token count.
func (c Cost) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// Add merges another cost delta into c and returns the result.
func (c Cost) Add(delta Cost) Cost {
	return Cost{
		Turns:          c.Turns + delta.Turns,
		InputTokens:    c.InputTokens + delta.InputTokens,
		OutputTokens:   c.OutputTokens + delta.OutputTokens,
		Spend:          c.Spend + delta.Spend,
		ElapsedSeconds: c.ElapsedSeconds + delta.ElapsedSeconds,
		SpawnCount:     c.SpawnCount + delta.SpawnCount,
	}
}

// LimitViolation names the first limit a cost has exceeded, if any.
// Checked before each turn; duration is checked by the caller because
// elapsed time is measured against the turn clock, not stored cost.
type LimitViolation struct {
	Code    string  // turns_exceeded, tokens_exceeded, spend_exceeded, duration_exceeded, spawns_exceeded
	Current float64 // observed value
	Max     float64 // configured bound
}

// CheckLimits returns the first violated limit or nil.
func (c Cost) CheckLimits(limits Limits) *LimitViolation {
	if limits.Turns != nil && c.Turns >= *limits.Turns {
		return &LimitViolation{Code: "turns_exceeded", Current: float64(c.Turns), Max: float64(*limits.Turns)}
	}
	if limits.Tokens != nil && c.TotalTokens() >= *limits.Tokens {
		return &LimitViolation{Code: "tokens_exceeded", Current: float64(c.TotalTokens()), Max: float64(*limits.Tokens)}
	}
	if limits.Spend != nil && c.Spend >= *limits.Spend {
		return &LimitViolation{Code: "spend_exceeded", Current: c.Spend, Max: *limits.Spend}
	}
	if limits.DurationSeconds != nil && c.ElapsedSeconds >= float64(*limits.DurationSeconds) {
		return &LimitViolation{Code: "duration_exceeded", Current: c.ElapsedSeconds, Max: float64(*limits.DurationSeconds)}
	}
	if limits.Spawns != nil && c.SpawnCount >= *limits.Spawns {
		return &LimitViolation{Code: "spawns_exceeded", Current: float64(c.SpawnCount), Max: float64(*limits.Spawns)}
	}
	return nil
}
