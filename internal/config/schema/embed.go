package schema

import _ "embed"

//go:embed rpmbuild-bot-config.schema.json
var ConfigSchema []byte
