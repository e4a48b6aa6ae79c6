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

package eventsource

import (
	"reflect"
	"testing"
)

func parseAll(chunks ...string) []Event {
	p := &parser{}
	var got []Event
	for _, c := range chunks {
		p.feed([]byte(c), func(ev Event) { got = append(got, ev) })
	}
	return got
}

func TestParser(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []Event
	}{
		{
			name:   "single event",
			chunks: []string{"data: hello\n\n"},
			want:   []Event{{Type: "message", Data: "hello"}},
		},
		{
			name:   "multi line data",
			chunks: []string{"data: a\ndata: b\n\n"},
			want:   []Event{{Type: "message", Data: "a\nb"}},
		},
		{
			name:   "crlf and cr line endings",
			chunks: []string{"data: a\r\n\r\ndata: b\r\r"},
			want:   []Event{{Type: "message", Data: "a"}, {Type: "message", Data: "b"}},
		},
		{
			name:   "event type and id",
			chunks: []string{"event: tick\nid: 7\ndata: x\n\ndata: y\n\n"},
			want: []Event{
				{Type: "tick", Data: "x", LastEventID: "7"},
				{Type: "message", Data: "y", LastEventID: "7"},
			},
		},
		{
			name:   "id with NUL is ignored",
			chunks: []string{"id: 1\ndata: a\n\nid: 2\x00\ndata: b\n\n"},
			want: []Event{
				{Type: "message", Data: "a", LastEventID: "1"},
				{Type: "message", Data: "b", LastEventID: "1"},
			},
		},
		{
			name:   "comments retry and unknown fields",
			chunks: []string{": keepalive\nretry: 10\nfoo: bar\ndata: z\n\n"},
			want:   []Event{{Type: "message", Data: "z"}},
		},
		{
			name:   "empty data is not dispatched",
			chunks: []string{"event: x\n\ndata: y\n\n"},
			want:   []Event{{Type: "message", Data: "y"}},
		},
		{
			name:   "field without colon",
			chunks: []string{"data\ndata\n\n"},
			want:   []Event{{Type: "message", Data: "\n"}},
		},
		{
			name:   "only one leading space is removed",
			chunks: []string{"data:  two\ndata:none\n\n"},
			want:   []Event{{Type: "message", Data: " two\nnone"}},
		},
		{
			name:   "value keeps later colons",
			chunks: []string{"data: a:b:c\n\n"},
			want:   []Event{{Type: "message", Data: "a:b:c"}},
		},
		{
			name:   "line split across chunks",
			chunks: []string{"da", "ta: hel", "lo\n", "\n"},
			want:   []Event{{Type: "message", Data: "hello"}},
		},
		{
			name:   "crlf split across chunks",
			chunks: []string{"data: a\r", "\n\r", "\n"},
			want:   []Event{{Type: "message", Data: "a"}},
		},
		{
			name:   "incomplete event is not dispatched",
			chunks: []string{"data: a\n"},
			want:   nil,
		},
		{
			name:   "leading byte order mark",
			chunks: []string{"\xef\xbb", "\xbfdata: a\n\n"},
			want:   []Event{{Type: "message", Data: "a"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAll(tt.chunks...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
