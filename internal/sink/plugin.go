package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/plugin"
)

// PluginSink forwards volume changes to an external plugin executable.
type PluginSink struct {
	plugin   *plugin.Plugin
	executor *plugin.Executor
}

// NewPluginSink wraps p. The plugin must support the set-volume action.
func NewPluginSink(p *plugin.Plugin, executor *plugin.Executor) *PluginSink {
	return &PluginSink{plugin: p, executor: executor}
}

// SetVolume sends a set-volume request to the plugin.
func (s *PluginSink) SetVolume(ctx context.Context, percent int) error {
	if err := checkPercent(percent); err != nil {
		return err
	}

	err := s.executor.SetVolume(ctx, s.plugin, percent)
	if errors.Is(err, plugin.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Name returns "plugin:<name>".
func (s *PluginSink) Name() string {
	return KindPlugin + ":" + s.plugin.Manifest.Name
}
