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
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const ClientIDHeader = "X-Client-ID"

// GenerateClientID identifies the peer of r: the X-Client-ID header when the
// host sets one, else a short hash of the remote IP, else a random id.
func GenerateClientID(r *http.Request) string {
	if clientID := r.Header.Get(ClientIDHeader); clientID != "" {
		return clientID
	}
	return ClientIDFromAddr(r.RemoteAddr)
}

func ClientIDFromAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return uuid.New().String()
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	if strings.Contains(host, ":") {
		if ip := net.ParseIP(host); ip != nil {
			host = ip.String()
		}
	}

	hash := sha256.Sum256([]byte(host))
	return hex.EncodeToString(hash[:])[:12]
}

// HeaderPairs flattens an http.Header into lower-cased name/value pairs.
func HeaderPairs(h http.Header) [][2]string {
	pairs := make([][2]string, 0, len(h))
	for name, values := range h {
		lower := strings.ToLower(name)
		for _, v := range values {
			pairs = append(pairs, [2]string{lower, v})
		}
	}
	return pairs
}

// RequestHeaderPairs is HeaderPairs of r.Header plus the host header, which
// net/http keeps outside the header map.
func RequestHeaderPairs(r *http.Request) [][2]string {
	pairs := HeaderPairs(r.Header)
	if r.Host != "" {
		pairs = append([][2]string{{"host", r.Host}}, pairs...)
	}
	return pairs
}
