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

// Package bridge connects an application invoked as
// Serve(scope, receive, send) to a host that only passes messages.
//
// Three bridges are provided. ExchangeBridge drives a single request to one
// aggregated response. StreamBridge drives a long-lived duplex connection
// over a Transport, translating both directions until it closes.
// ChannelBridge forwards events verbatim between the application and a
// dedicated host Channel, for progressive output.
//
// Each bridge instance serves exactly one connection and is never reused.
package bridge
