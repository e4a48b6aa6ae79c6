// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package core

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// EncodeLatin1 converts s to one byte per character. Characters outside
// Latin-1 cannot be represented and are an error.
func EncodeLatin1(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("latin-1 encode %q: %w", s, err)
	}
	return b, nil
}

// DecodeLatin1 maps every byte of b to the character with the same code
// point.
func DecodeLatin1(b []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// ISO 8859-1 maps all 256 byte values.
		return string(b)
	}
	return string(out)
}

// HeadersFromPairs converts host text header pairs to Latin-1 byte pairs.
func HeadersFromPairs(pairs [][2]string) ([]Header, error) {
	headers := make([]Header, 0, len(pairs))
	for _, p := range pairs {
		name, err := EncodeLatin1(p[0])
		if err != nil {
			return nil, fmt.Errorf("%w: header name: %v", ErrInvalidRequest, err)
		}
		value, err := EncodeLatin1(p[1])
		if err != nil {
			return nil, fmt.Errorf("%w: header %s: %v", ErrInvalidRequest, p[0], err)
		}
		headers = append(headers, Header{Name: name, Value: value})
	}
	return headers, nil
}

// HeaderMap decodes headers into host text. A repeated name keeps its last
// value.
func HeaderMap(headers []Header) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[DecodeLatin1(h.Name)] = DecodeLatin1(h.Value)
	}
	return m
}

// TextHeader builds a header from ASCII text, for applications composing
// responses.
func TextHeader(name, value string) Header {
	return Header{Name: []byte(name), Value: []byte(value)}
}
