package kinnet

// BuildMemo prepends the configured memo prefix to text and checks that
// the result fits in a text memo.
func (c Config) BuildMemo(text string) (string, error) {
	memo := c.MemoPrefix() + text
	if len(memo) > MaxMemoLength {
		return "", invalidParam("memo", "%q is longer than %d bytes with prefix %q", text, MaxMemoLength, c.MemoPrefix())
	}
	return memo, nil
}
