package app

import (
	"maps"

	"github.com/vk/detflow/internal/config"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/remote"
)

// remoteOptions maps the remote section of the configuration onto the
// socket.io reader options.
func remoteOptions(c config.RemoteConfig) remote.Options {
	return remote.Options{
		Namespace:          c.Namespace,
		Timeout:            c.Timeout,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}

// namespace returns a fresh run namespace seeded from the configuration, so
// writes by one run never leak into the next.
func (a *App) namespace() node.Namespace {
	ns := make(node.Namespace, len(a.cfg.Namespace))
	maps.Copy(ns, a.cfg.Namespace)
	return ns
}
