// Copyright 2023 The OpenSlate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"bytes"
	"encoding/json"
	"io/ioutil"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// gzipMagic prefixes every compressed blob. JSON output never starts with
// these bytes, so a stored blob identifies its own encoding.
var gzipMagic = []byte{0x1f, 0x8b}

// encode serializes a payload, compressing it when the serialized form
// exceeds the threshold. A threshold of zero or less disables compression.
func encode(value interface{}, compressionThreshold int) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal cache payload")
	}
	if compressionThreshold <= 0 || len(data) <= compressionThreshold {
		return data, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to compress cache payload")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to compress cache payload")
	}
	return buf.Bytes(), nil
}

// decode deserializes a stored blob into out, decompressing it first when
// it carries the gzip magic.
func decode(blob []byte, out interface{}) error {
	if isCompressed(blob) {
		zr, err := gzip.NewReader(bytes.NewReader(blob))
		if err != nil {
			return errors.Wrap(err, "failed to decompress cache payload")
		}
		defer zr.Close()

		data, err := ioutil.ReadAll(zr)
		if err != nil {
			return errors.Wrap(err, "failed to decompress cache payload")
		}
		blob = data
	}
	return errors.Wrap(json.Unmarshal(blob, out), "failed to unmarshal cache payload")
}

func isCompressed(blob []byte) bool {
	return bytes.HasPrefix(blob, gzipMagic)
}
