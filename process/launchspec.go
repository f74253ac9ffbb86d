// SPDX-License-Identifier: GPL-3.0-or-later

package process

import (
	"fmt"
	"os/exec"

	"github.com/mitchellh/mapstructure"
)

// LaunchSpec describes how to start an application's child process,
// decoded from an application record's free-form parameters (spec §3's
// application_record, §4.F, domain-stack wiring of §3's dependency
// table).
type LaunchSpec struct {
	ExecPath string            `mapstructure:"exec_path"`
	Args     []string          `mapstructure:"args"`
	Env      map[string]string `mapstructure:"env"`
}

// DecodeLaunchSpec decodes raw (typically the free-form parameters
// attached to an application record) into a [LaunchSpec].
func DecodeLaunchSpec(raw map[string]any) (LaunchSpec, error) {
	var spec LaunchSpec
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &spec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return spec, err
	}
	if err := dec.Decode(raw); err != nil {
		return spec, fmt.Errorf("process: decoding launch spec: %w", err)
	}
	return spec, nil
}

// Command builds an [*exec.Cmd] for spec, ready for the caller to attach
// pipes to before Start.
func (spec LaunchSpec) Command() *exec.Cmd {
	cmd := exec.Command(spec.ExecPath, spec.Args...)
	if len(spec.Env) > 0 {
		env := make([]string, 0, len(spec.Env))
		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	return cmd
}
