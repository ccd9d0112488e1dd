package classify

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// EmotionLabels are the classes of the facial emotion model, in output order.
var EmotionLabels = []string{"Neutral", "Happy", "Sad", "Surprise", "Fear", "Disgust", "Anger"}

// LoadLabels reads one label per line. Blank lines and lines starting with '#' are skipped.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open labels file '%s'", path)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read labels file '%s'", path)
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("labels file '%s' is empty", path)
	}

	return labels, nil
}

func labelFor(labels []string, idx int) string {
	if idx >= 0 && idx < len(labels) {
		return labels[idx]
	}
	return fmt.Sprintf("class_%d", idx)
}
