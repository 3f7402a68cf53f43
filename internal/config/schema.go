// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-sampler.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

const configSchema = `{
    "type": "object",
    "description": "cc-sampler agent configuration.",
    "properties": {
        "tags": {
            "description": "Base tags applied to every cell.",
            "type": "object",
            "additionalProperties": { "type": "string" }
        },
        "collectors": {
            "description": "Ordered list of collectors to run.",
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "type": {
                        "description": "Collector type name, must match a known collector.",
                        "type": "string"
                    }
                },
                "required": ["type"]
            }
        },
        "blacklist": {
            "description": "Collector type names to skip even when listed.",
            "type": "array",
            "items": { "type": "string" }
        },
        "instance_config": {
            "description": "Worker instance lifetime limits.",
            "type": "object",
            "properties": {
                "max_runs": {
                    "description": "Collections until the worker is recycled.",
                    "type": "integer",
                    "minimum": 1
                },
                "max_errors": {
                    "description": "Errors allowed until the worker is recycled.",
                    "type": "integer",
                    "minimum": 0
                },
                "graceful_timeout": {
                    "description": "Seconds allowed for a graceful shutdown.",
                    "type": "number",
                    "exclusiveMinimum": 0
                },
                "forceful_timeout": {
                    "description": "Seconds allowed for one forceful shutdown attempt.",
                    "type": "number",
                    "exclusiveMinimum": 0
                },
                "max_forceful_attempts": {
                    "description": "Forceful shutdown attempts before giving up.",
                    "type": "integer",
                    "minimum": 1
                }
            },
            "additionalProperties": false
        },
        "sinks": {
            "description": "Snapshot sinks.",
            "type": "object",
            "properties": {
                "nats": {
                    "type": "object",
                    "properties": {
                        "address": {
                            "description": "Address of the NATS server (e.g., 'nats://localhost:4222').",
                            "type": "string"
                        },
                        "username": { "type": "string" },
                        "password": { "type": "string" },
                        "creds-file-path": { "type": "string" },
                        "subject": {
                            "description": "Subject snapshots are published to.",
                            "type": "string"
                        },
                        "publish-interval": {
                            "description": "Publish interval as a Go duration string.",
                            "type": "string"
                        }
                    },
                    "required": ["address"],
                    "additionalProperties": false
                }
            },
            "additionalProperties": false
        },
        "monitoring": {
            "description": "HTTP endpoint for /metrics, /snapshot and /health.",
            "type": "object",
            "properties": {
                "addr": { "type": "string" }
            },
            "required": ["addr"],
            "additionalProperties": false
        }
    },
    "additionalProperties": false
}`
