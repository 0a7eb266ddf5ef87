package deploy

import (
	"fmt"
	"os"
	"strings"
)

// renderTemplate copies the template to a scratch file and substitutes each
// placeholder with its value. Substitution is literal and non-overlapping:
// all placeholders are replaced in one pass, so a placeholder token inside a
// substituted value is never rescanned and re-substituted. Placeholders with
// an unset or empty value are left verbatim so that a missing input stays
// visible in the rendered output instead of being silently blanked. The
// source template is never mutated.
//
// The caller owns the returned scratch file and removes it when done.
func renderTemplate(templatePath string, values map[string]string) (string, error) {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}

	pairs := make([]string, 0, 2*len(values))
	for placeholder, value := range values {
		if value == "" {
			continue
		}
		pairs = append(pairs, placeholder, value)
	}
	rendered := strings.NewReplacer(pairs...).Replace(string(data))

	info, err := os.Stat(templatePath)
	if err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp("", "hostsyncd-render-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.WriteString(rendered); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write rendered template: %w", err)
	}
	if err := tmpFile.Chmod(info.Mode()); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	return tmpPath, nil
}
