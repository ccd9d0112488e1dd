package metrics

import (
	"fmt"
	"time"
)

// Timings are the durations of the steps of one processed frame.
type Timings struct {
	Detect      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Draw        time.Duration
	Write       time.Duration
	Total       time.Duration
}

func (t Timings) String() string {
	return fmt.Sprintf(
		"detect=%6.2fms | preproc=%6.2fms | infer=%6.2fms | post=%6.2fms | draw=%6.2fms | write=%6.2fms | total=%6.2fms",
		ms(t.Detect), ms(t.Preprocess), ms(t.Inference), ms(t.Postprocess), ms(t.Draw), ms(t.Write), ms(t.Total),
	)
}

func (t Timings) byStage() map[string]time.Duration {
	return map[string]time.Duration{
		"detect":      t.Detect,
		"preprocess":  t.Preprocess,
		"inference":   t.Inference,
		"postprocess": t.Postprocess,
		"draw":        t.Draw,
		"write":       t.Write,
		"total":       t.Total,
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
