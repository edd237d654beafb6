// Copyright 2019 Google LLC
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

package algorithms

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"

	"github.com/pkg/errors"
)

// CompressState encodes v as zlib compressed JSON in base64 so that it can be
// stored as a metadata value.
func CompressState(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "cannot encode designer state")
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err = w.Write(raw); err != nil {
		return "", errors.Wrap(err, "cannot compress designer state")
	}
	if err = w.Close(); err != nil {
		return "", errors.Wrap(err, "cannot compress designer state")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecompressState is the inverse of CompressState. Failures are DecodeErrors.
func DecompressState(s string, v interface{}) error {
	compressed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return NewDecodeError(err, "state is not base64")
	}
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return NewDecodeError(err, "state is not zlib compressed")
	}
	defer r.Close()
	raw, err := ioutil.ReadAll(r)
	if err != nil {
		return NewDecodeError(err, "state is truncated")
	}
	if err = json.Unmarshal(raw, v); err != nil {
		return NewDecodeError(err, "state is not valid JSON")
	}
	return nil
}
