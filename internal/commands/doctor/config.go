package doctor

import (
	"context"
	"errors"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/conch/internal/core/config"
)

// ConfigCheck reports config errors (including files and executables it
// references) and warnings.
type ConfigCheck struct {
	cfg  *config.Config
	path string
}

func NewConfigCheck(cfg *config.Config, path string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, path: path}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(ctx context.Context) Result {
	r := Result{Name: c.Name()}

	if c.cfg == nil {
		r.fail("Config loaded", "configuration not loaded")
		return r
	}

	if err := c.cfg.ValidateDeep(c.path); err != nil {
		for _, fe := range fieldErrors(err) {
			label := fe.Field
			if label == "" {
				label = "validation"
			}
			r.fail(label, fe.Err.Error())
		}
	}

	for _, w := range c.cfg.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += " (" + w.Item + ")"
		}
		r.warn(label, w.Message)
	}

	if len(r.Items) == 0 {
		r.pass("Config valid", c.path)
	}
	return r
}

func fieldErrors(err error) criterio.FieldErrors {
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return criterio.FieldErrors{{Err: err}}
}
