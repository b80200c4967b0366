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

package redisqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reliqueue/reliqueue/queue"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultHashName, cfg.HashName)
	assert.Equal(t, defaultListName, cfg.ListName)
	assert.Equal(t, defaultSortedSetName, cfg.SortedSetName)
	assert.NotNil(t, cfg.Config.Clock)
	assert.NotNil(t, cfg.Config.Serializer)
}

func TestConfigDefaultsPreservesOverrides(t *testing.T) {
	cfg := Config{
		HashName:      "custom_h",
		ListName:      "custom_l",
		SortedSetName: "custom_s",
	}.withDefaults()
	assert.Equal(t, "custom_h", cfg.HashName)
	assert.Equal(t, "custom_l", cfg.ListName)
	assert.Equal(t, "custom_s", cfg.SortedSetName)
}

func TestScriptsAreNonEmpty(t *testing.T) {
	assert.NotEmpty(t, scriptTakeEphemeral)
	assert.NotEmpty(t, scriptTakeNoEphemeral)
	assert.NotEmpty(t, scriptRequeue)
}

func TestPayloadRoundTripsThroughConfiguredSerializer(t *testing.T) {
	cfg := Config{}.withDefaults()
	msg := queue.Message{ID: "abc", Content: []byte("payload")}
	data, err := cfg.Config.Serializer.Marshal(msg)
	assert.NoError(t, err)

	got, err := cfg.Config.Serializer.Unmarshal(data)
	assert.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Content, got.Content)
}
