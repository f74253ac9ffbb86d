// SPDX-License-Identifier: GPL-3.0-or-later

package factory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/igankevich/factory/factory"
	"github.com/igankevich/factory/kernel"
	"github.com/igankevich/factory/transport"
)

func TestFactoryWiresLocalErrorPipelineToItself(t *testing.T) {
	f := factory.New(nil)
	require.Same(t, f, f.Local.ErrorPipeline)
	f.Local.Workers = 1
	f.Local.Handlers[1] = func(k *kernel.Kernel) { k.ReturnToParent(kernel.Success) }

	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	k := kernel.New()
	k.TypeID = 1
	k.Parent = kernel.IDRef(42)
	f.Local.RouteLocal(k)

	waitFor(t, func() bool {
		return f.Registry.Len() >= 0 // no crash: routed through Factory.RouteUpstream without a connection
	})
}

func TestFactoryForwardFailsWithoutUsableRoute(t *testing.T) {
	f := factory.New(nil)
	err := f.Forward(5, kernel.UnspecifiedEndpoint, []byte("payload"))
	require.Error(t, err, "forwarding to an application with no registered route must fail loudly, not silently drop")

	c := &transport.Client{}
	f.RegisterRoute(5, c)
	err = f.Forward(5, kernel.UnspecifiedEndpoint, []byte("payload"))
	require.Error(t, err, "a route with a nil Engine still can't actually forward")
}
