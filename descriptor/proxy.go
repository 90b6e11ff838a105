// File: descriptor/proxy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/binding"
)

// StartProxy binds this descriptor's inbound stream to the target's
// outbound queue. With limit > 0 forwarding stops after exactly that
// many bytes, emits the proxy-completed event, and subsequent bytes
// flow to the normal read callback. bufsize bounds the target's
// outbound queue for backpressure; 0 disables backpressure.
//
// A target accepts one source at a time; re-binding a busy target
// fails with api.ErrProxyBusy.
func (d *Base) StartProxy(to api.Binding, bufsize int, limit uint64) error {
	target, ok := binding.Get(to).(eventable)
	if !ok {
		return api.ErrBadBinding
	}
	d.StopProxy()
	if err := target.base().setProxiedFrom(d.self, bufsize); err != nil {
		return err
	}
	d.proxyTarget = target
	d.bytesToProxy = limit
	d.proxiedBytes = 0
	return nil
}

// StopProxy tears down the forwarding link, releasing the target for
// another source. Safe to call when no proxy is active.
func (d *Base) StopProxy() {
	if d.proxyTarget != nil {
		_ = d.proxyTarget.base().setProxiedFrom(nil, 0)
		d.proxyTarget = nil
	}
}

// ProxiedBytes reports the bytes forwarded since StartProxy.
func (d *Base) ProxiedBytes() uint64 { return d.proxiedBytes }

func (d *Base) setProxiedFrom(from eventable, bufsize int) error {
	if from != nil && d.proxiedFrom != nil {
		return api.ErrProxyBusy
	}
	d.proxiedFrom = from
	d.maxOutboundBufSize = bufsize
	return nil
}

// genericInboundDispatch routes one inbound chunk: to the proxy target
// while a link is active, to the read callback otherwise. A bounded
// link that exhausts its limit mid-chunk splits the chunk at the
// boundary, so the trailing bytes reach the read callback of the same
// dispatch.
//
// buf must carry the guard NUL in its backing array one byte past its
// length.
func (d *Base) genericInboundDispatch(buf []byte) {
	if d.proxyTarget == nil {
		d.emit(d.bnd, api.ConnectionRead, buf, uint64(len(buf)))
		return
	}
	size := uint64(len(buf))
	if d.bytesToProxy > 0 {
		proxied := d.bytesToProxy
		if size < proxied {
			proxied = size
		}
		if _, err := d.proxyTarget.SendOutboundData(buf[:proxied]); err != nil {
			d.log.Warn().Err(err).Msg("proxy target rejected forwarded bytes")
		}
		d.proxiedBytes += proxied
		d.bytesToProxy -= proxied
		if d.bytesToProxy == 0 {
			d.StopProxy()
			d.emit(d.bnd, api.ProxyCompleted, nil, 0)
			if proxied < size {
				d.emit(d.bnd, api.ConnectionRead, buf[proxied:], size-proxied)
			}
		}
		return
	}
	if _, err := d.proxyTarget.SendOutboundData(buf); err != nil {
		d.log.Warn().Err(err).Msg("proxy target rejected forwarded bytes")
	}
	d.proxiedBytes += size
}
