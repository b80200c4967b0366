/*
Copyright 2026 The reliqueue Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Serializer maps a Message to and from the opaque byte sequence an adapter
// stores in an external system. Implementations must be total, deterministic
// and round-trip reversible on every field of Message, per spec.md §4.1.
//
// The contract does not dictate a wire format; adapters only require that
// whatever Serializer they are given satisfies this interface.
type Serializer interface {
	Marshal(msg Message) ([]byte, error)
	Unmarshal(data []byte) (Message, error)
}

// wireMessage is the serializable shape of Message. It exists so the gob
// serializer below does not depend on Message's exported field order.
type wireMessage struct {
	ID              string
	Content         []byte
	OriginTimestamp int64 // UnixNano
	Timestamp       int64 // UnixNano
	NumRequeues     int
}

// GobSerializer is the default Serializer, built on encoding/gob. It is
// total and deterministic for every Message value and is the serializer
// every adapter falls back to when the caller does not supply one.
type GobSerializer struct{}

var _ Serializer = GobSerializer{}

func (GobSerializer) Marshal(msg Message) ([]byte, error) {
	w := wireMessage{
		ID:              msg.ID,
		Content:         msg.Content,
		OriginTimestamp: msg.OriginTimestamp.UnixNano(),
		Timestamp:       msg.Timestamp.UnixNano(),
		NumRequeues:     msg.NumRequeues,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, fmt.Errorf("gob encode message: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobSerializer) Unmarshal(data []byte) (Message, error) {
	var w wireMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return Message{}, fmt.Errorf("gob decode message: %w", err)
	}
	return messageFromWire(w), nil
}

func messageFromWire(w wireMessage) Message {
	return Message{
		ID:              w.ID,
		Content:         w.Content,
		OriginTimestamp: nanoToTime(w.OriginTimestamp),
		Timestamp:       nanoToTime(w.Timestamp),
		NumRequeues:     w.NumRequeues,
	}
}
