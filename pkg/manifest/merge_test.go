package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *File {
	t.Helper()
	f, err := Parse([]byte(src))
	require.NoError(t, err)
	return f
}

func TestMergeScalarsReplace(t *testing.T) {
	base := mustParse(t, `
name: shop
services:
  db:
    image: postgres:15
`)
	over := mustParse(t, `
name: shop-dev
services:
  db:
    image: postgres:16
`)
	out := Merge(base, over)
	assert.Equal(t, "shop-dev", out.Name)
	assert.Equal(t, "postgres:16", out.Services["db"].Image)

	// Inputs stay untouched.
	assert.Equal(t, "shop", base.Name)
	assert.Equal(t, "postgres:15", base.Services["db"].Image)
}

func TestMergeReplacesProvisioningMethod(t *testing.T) {
	base := mustParse(t, `
services:
  web:
    build:
      steps:
        - kind: run
          command: make
`)
	over := mustParse(t, `
services:
  web:
    image: web:pinned
`)
	out := Merge(base, over)
	assert.Equal(t, "web:pinned", out.Services["web"].Image)
	assert.Nil(t, out.Services["web"].Build, "image override clears the base build")

	back := Merge(out, base)
	assert.Empty(t, back.Services["web"].Image)
	require.NotNil(t, back.Services["web"].Build)
}

func TestMergeEnvironmentByKey(t *testing.T) {
	base := mustParse(t, `
services:
  web:
    image: web:1
    environment:
      LOG_LEVEL: info
      DB_HOST: db
`)
	over := mustParse(t, `
services:
  web:
    environment:
      LOG_LEVEL: debug
      DEBUG: "1"
`)
	out := Merge(base, over)
	env := out.Services["web"].Environment
	assert.Equal(t, "debug", env["LOG_LEVEL"])
	assert.Equal(t, "db", env["DB_HOST"])
	assert.Equal(t, "1", env["DEBUG"])
}

func TestMergeVolumesByTarget(t *testing.T) {
	base := mustParse(t, `
services:
  web:
    image: web:1
    volumes:
      - ./src:/app:ro
      - cache:/var/cache
`)
	over := mustParse(t, `
services:
  web:
    volumes:
      - ./other:/app
      - /app/tmp
`)
	out := Merge(base, over)
	assert.Equal(t, []string{
		"./other:/app",
		"cache:/var/cache",
		"/app/tmp",
	}, out.Services["web"].Volumes, "same target replaces in place, new targets append")
}

func TestMergePortsByHostPort(t *testing.T) {
	base := mustParse(t, `
services:
  web:
    image: web:1
    ports:
      - "8080:3000"
      - "5353:53/udp"
`)
	over := mustParse(t, `
services:
  web:
    ports:
      - "8080:8000"
      - "9090:9000"
`)
	out := Merge(base, over)
	assert.Equal(t, []string{
		"8080:8000",
		"5353:53/udp",
		"9090:9000",
	}, out.Services["web"].Ports)
}

func TestMergeSameHostPortDifferentProtocol(t *testing.T) {
	base := mustParse(t, `
services:
  dns:
    image: dns:1
    ports:
      - "53:53/udp"
`)
	over := mustParse(t, `
services:
  dns:
    ports:
      - "53:53"
`)
	out := Merge(base, over)
	assert.Equal(t, []string{"53:53/udp", "53:53"}, out.Services["dns"].Ports,
		"a tcp binding does not replace the udp binding of the same host port")
}

func TestMergeCommandReplacesWholesale(t *testing.T) {
	base := mustParse(t, `
services:
  web:
    image: web:1
    command: ["node", "server.js"]
`)
	over := mustParse(t, `
services:
  web:
    command: ["node", "server.js", "--debug"]
`)
	out := Merge(base, over)
	assert.Equal(t, []string{"node", "server.js", "--debug"}, out.Services["web"].Command)
}

func TestMergeAddsNewService(t *testing.T) {
	base := mustParse(t, `
services:
  web:
    image: web:1
`)
	over := mustParse(t, `
services:
  debugger:
    image: debugger:1
`)
	out := Merge(base, over)
	require.Len(t, out.Services, 2)
	assert.Equal(t, "debugger:1", out.Services["debugger"].Image)
}

func TestMergeCannotRemove(t *testing.T) {
	base := mustParse(t, `
services:
  web:
    image: web:1
    volumes:
      - cache:/var/cache
    ports:
      - "8080:3000"
`)
	over := mustParse(t, `
services:
  web: {}
`)
	out := Merge(base, over)
	assert.Equal(t, []string{"cache:/var/cache"}, out.Services["web"].Volumes)
	assert.Equal(t, []string{"8080:3000"}, out.Services["web"].Ports)
	assert.Equal(t, "web:1", out.Services["web"].Image)
}

func TestMergeKeepsBaseDir(t *testing.T) {
	base := mustParse(t, "services:\n  web:\n    image: web:1\n")
	base.Dir = "/proj"
	over := mustParse(t, "services: {}\n")
	over.Dir = "/proj/overrides"

	out := Merge(base, over)
	assert.Equal(t, "/proj", out.Dir, "relative paths resolve against the first file")
}
