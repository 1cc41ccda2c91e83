// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config loads the gateway's function/model/tool/metric document and
converts it into the runtime types the rest of the gateway consumes.

# Core structures

  - GatewayConfig: the top-level YAML document (Models, Tools, Functions,
    Metrics), loaded by LoadGatewayConfig and checked by Validate for
    reserved-prefix names and dangling model references
  - BuildRegistry / BuildMetricRegistry: convert a validated GatewayConfig
    into a function.Registry and a feedback.MetricRegistry
  - BuildAdapterRegistry: wires every provider kind the gateway speaks into
    an llm.AdapterRegistry

A function/model registry is authored as a whole YAML document rather than
assembled from defaults plus environment overrides, so this package has no
separate env-prefix loader: LoadGatewayConfig reads and validates the file
in one pass.

# Usage

	cfg, err := config.LoadGatewayConfig("gateway.yaml")
	registry, err := cfg.BuildRegistry(logger)
*/
package config
