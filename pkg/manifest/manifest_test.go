package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stackYAML = `
name: shop
services:
  web:
    build:
      context: ./web
      args:
        ENV: production
      steps:
        - kind: from-base
          from: node:20
        - kind: set-workdir
          workdir: /app
        - kind: copy
          src: package.json
          dst: /app/
        - kind: run
          command: npm ci
        - kind: copy
          src: .
          dst: /app
        - kind: set-command
          cmd: ["node", "server.js"]
    environment:
      DB_HOST: db
    volumes:
      - ./web:/app:ro
      - /app/node_modules
    ports:
      - "8080:3000"
  db:
    image: postgres:16
    volumes:
      - dbdata:/var/lib/postgresql/data
`

func TestParseStackFile(t *testing.T) {
	f, err := Parse([]byte(stackYAML))
	require.NoError(t, err)

	assert.Equal(t, "shop", f.Name)
	require.Len(t, f.Services, 2)

	web := f.Services["web"]
	require.NotNil(t, web)
	require.NotNil(t, web.Build)
	assert.Equal(t, "./web", web.Build.Context)
	assert.Equal(t, "production", web.Build.Args["ENV"])
	require.Len(t, web.Build.Steps, 6)
	assert.Equal(t, "from-base", web.Build.Steps[0].Kind)
	assert.Equal(t, "node:20", web.Build.Steps[0].From)
	assert.Equal(t, []string{"node", "server.js"}, web.Build.Steps[5].Cmd)

	db := f.Services["db"]
	require.NotNil(t, db)
	assert.Equal(t, "postgres:16", db.Image)
	assert.Nil(t, db.Build)
}

func TestParseBadYAML(t *testing.T) {
	_, err := Parse([]byte("services: [not, a, map]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseEmptyServiceEntry(t *testing.T) {
	f, err := Parse([]byte("services:\n  web:\n"))
	require.NoError(t, err)
	require.NotNil(t, f.Services["web"])

	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of image or build")
}

func TestValidateRejectsImageAndBuild(t *testing.T) {
	f, err := Parse([]byte(`
services:
  web:
    image: node:20
    build:
      steps:
        - kind: run
          command: true
`))
	require.NoError(t, err)

	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of image or build")
}

func TestValidateStepKinds(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown kind",
			yaml: "- kind: shazam",
			want: `unknown step kind "shazam"`,
		},
		{
			name: "missing kind",
			yaml: "- src: a\n          dst: /b",
			want: "step kind is required",
		},
		{
			name: "from-base not first",
			yaml: "- kind: run\n          command: true\n        - kind: from-base\n          from: alpine",
			want: "only allowed as the first step",
		},
		{
			name: "workdir relative",
			yaml: "- kind: set-workdir\n          workdir: app",
			want: "absolute workdir",
		},
		{
			name: "copy missing dst",
			yaml: "- kind: copy\n          src: a",
			want: "copy requires src and dst",
		},
		{
			name: "if without branches",
			yaml: "- kind: if\n          arg: ENV",
			want: "then or else branch",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Parse([]byte(`
services:
  web:
    build:
      steps:
        ` + tc.yaml + "\n"))
			require.NoError(t, err)

			err = f.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateConditionalBranches(t *testing.T) {
	f, err := Parse([]byte(`
services:
  web:
    build:
      steps:
        - kind: if
          arg: ENV
          equals: production
          then:
            - kind: run
              command: npm ci --omit=dev
          else:
            - kind: from-base
              from: alpine
`))
	require.NoError(t, err)

	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only allowed as the first step")
}

func TestValidateServiceName(t *testing.T) {
	for _, name := range []string{"web", "web-api", "db2"} {
		assert.NoError(t, validateServiceName(name), name)
	}
	for _, name := range []string{"", "Web", "-web", "web_api", "a.b"} {
		assert.Error(t, validateServiceName(name), name)
	}
}

func TestValidateMountAndPortStrings(t *testing.T) {
	f, err := Parse([]byte(`
services:
  db:
    image: postgres:16
    volumes:
      - dbdata:data
`))
	require.NoError(t, err)
	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target must be an absolute path")

	f, err = Parse([]byte(`
services:
  db:
    image: postgres:16
    ports:
      - "80"
`))
	require.NoError(t, err)
	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hostPort:containerPort")
}

func TestLoadRecordsDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hutch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(stackYAML), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, f.Dir)
	assert.Equal(t, "shop", f.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read stack file")
}
