package appidentityassets

import _ "embed"

// YAML is the embedded application identity, giving the binary its vendor,
// config, and env-prefix metadata without requiring an external
// `.fulmen/app.yaml` alongside it.
//
//go:embed app.yaml
var YAML []byte
