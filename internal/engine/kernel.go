package engine

// Harness is the proving environment seen from inside the kernel. The
// kernel reads its witness once and commits its journal once.
type Harness interface {
	ReadInput() (GameInputs, error)
	Commit(GameResult) error
}

// Main is the kernel entry point. Scoring itself cannot fail; the only
// errors returned are the harness's own read and commit failures.
func Main(h Harness) error {
	in, err := h.ReadInput()
	if err != nil {
		return err
	}
	return h.Commit(Score(in))
}
