// Copyright 2024 The xdp2p Authors
// This file is part of xdp2p.
//
// xdp2p is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// xdp2p is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with xdp2p. If not, see <http://www.gnu.org/licenses/>.

package p2p

// Handler is implemented by host application code that wants to participate
// in one or more application message codes (0x20-0xFF).
type Handler interface {
	OnConnect(ch *Channel)
	OnDisconnect(ch *Channel, reason DisconnectReason)
	OnMessage(ch *Channel, code byte, body []byte)
}

// handlerRegistry is an O(1) code -> Handler map. At most one handler may
// own a given code; registering a second is a fatal configuration error at
// startup.
type handlerRegistry struct {
	byCode [256]Handler
	all    []Handler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{}
}

func (r *handlerRegistry) register(codes []byte, h Handler) error {
	for _, c := range codes {
		if !IsApplicationCode(c) {
			return &ParseError{Kind: ErrKindUnknownCode}
		}
		if r.byCode[c] != nil {
			return errHandlerCodeTaken
		}
	}
	for _, c := range codes {
		r.byCode[c] = h
	}
	r.all = append(r.all, h)
	return nil
}

func (r *handlerRegistry) lookup(code byte) Handler {
	return r.byCode[code]
}

func (r *handlerRegistry) broadcastConnect(ch *Channel) {
	for _, h := range r.all {
		h.OnConnect(ch)
	}
}

func (r *handlerRegistry) broadcastDisconnect(ch *Channel, reason DisconnectReason) {
	for _, h := range r.all {
		h.OnDisconnect(ch, reason)
	}
}
