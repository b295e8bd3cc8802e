// Package testutil holds shared tree and graph fixtures for package tests.
package testutil

// TreeYAML is a small three-level organisation:
//
//	cto (executive)
//	├── platform (department, block rule)   → auth, storage
//	├── product  (department, escalate rule) → web, mobile, api
//	└── qa       (department "Bug Triage")  → triage
const TreeYAML = `
schema_version: 1
file_type: tree
root: cto
nodes:
  cto:
    name: Chief Technology Office
    scale: executive
    parent: null
    children: [platform, product, qa]
  platform:
    name: Platform
    scale: department
    parent: cto
    children: [auth, storage]
    rules:
      - {name: halt-on-failure, condition: any_child_failed, action: block}
    escalation: {target: cto, threshold: 7, cascade: [cto]}
  product:
    name: Product Engineering
    scale: department
    parent: cto
    children: [web, mobile, api]
    rules:
      - {name: escalate-failures, condition: any_child_failed, action: escalate}
    escalation: {target: cto, threshold: 7, cascade: [platform, cto]}
  qa:
    name: Bug Triage
    scale: department
    parent: cto
    children: [triage]
  auth:
    name: Auth Captain
    scale: captain
    parent: platform
    escalation: {target: platform}
    metadata:
      owned_resources: [auth-core]
      owned_files: [src/auth/login.go, config/credentials.yaml]
      owned_functions: [Login]
  storage:
    name: Storage Captain
    scale: captain
    parent: platform
    escalation: {target: platform}
    metadata:
      owned_resources: [storage-engine, core]
      owned_files: [src/storage/engine.go]
  web:
    name: Web Captain
    scale: captain
    parent: product
    escalation: {target: product}
    metadata:
      owned_resources: [web-ui, moduleX]
      owned_files: [web/app.tsx]
  mobile:
    name: Mobile Captain
    scale: captain
    parent: product
    metadata:
      owned_resources: [mobile-app]
      owned_files: [mobile/main.dart]
  api:
    name: API Captain
    scale: captain
    parent: product
    escalation: {target: product}
    rules:
      - {name: schema-review, condition: any_child_failed, action: escalate}
      - {name: contract-tests, condition: any_child_failed, action: block}
      - {name: rate-limits, condition: any_child_failed, action: block}
      - {name: versioning, condition: any_child_failed, action: block}
    metadata:
      owned_resources: [api-gateway]
      owned_files: [src/api/router.go]
      owned_functions: [HandleRequest]
  triage:
    name: Triage Captain
    scale: captain
    parent: qa
    metadata:
      owned_resources: [triage-bot]
`

// GraphYAML is the component graph owned by the TreeYAML captains.
//
//	tier 0: core
//	tier 1: auth-core, storage-engine (both → core)
//	tier 2: api-gateway (→ auth-core), triage-bot
//	tier 3: web-ui, mobile-app (both → api-gateway)
const GraphYAML = `
schema_version: 1
file_type: graph
tiers:
  0: {name: foundation, description: shared primitives}
  1: {name: services}
  2: {name: edges}
  3: {name: clients}
components:
  core:
    tier: 0
    path: core/
    deps: []
    owning_node: storage
    description: shared primitives
  auth-core:
    tier: 1
    path: src/auth/
    deps: [core]
    owning_node: auth
  storage-engine:
    tier: 1
    path: src/storage/
    deps: [core]
    owning_node: storage
  api-gateway:
    tier: 2
    path: src/api/
    deps: [auth-core]
    owning_node: api
  triage-bot:
    tier: 2
    path: tools/triage/
    owning_node: triage
  web-ui:
    tier: 3
    path: web/
    deps: [api-gateway]
    owning_node: web
  mobile-app:
    tier: 3
    path: mobile/
    deps: [api-gateway]
    owning_node: mobile
`
