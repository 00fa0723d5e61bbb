package script

import "text/template"

// configTemplate/launchTemplate/aliasFileTemplate return the text/template
// used to render each script kind. A single parameterized
// template serves every dialect; the data's own Shell field selects the
// branch, so no shell argument is needed here.
func configTemplate() *template.Template {
	return template.Must(template.New("config").Parse(configTemplateSource))
}

func launchTemplate() *template.Template {
	return template.Must(template.New("launch").Parse(launchTemplateSource))
}

func aliasFileTemplate() *template.Template {
	return template.Must(template.New("alias").Parse(aliasTemplateSource))
}

// A single parameterized template source serves every dialect: Shell
// carries the dialect name the body branches on, rather than four separate
// template files.
const configTemplateSource = `{{if eq .Shell "batch"}}@echo off
{{else if eq .Shell "ps"}}# hab activation script
{{else}}#!/bin/sh
{{end}}
{{if eq .Shell "batch"}}set HAB_URI={{.URI}}
if not defined HAB_FREEZE set HAB_FREEZE={{.Freeze}}
{{else if eq .Shell "ps"}}$env:HAB_URI = "{{.URI}}"
if (-not $env:HAB_FREEZE) { $env:HAB_FREEZE = "{{.Freeze}}" }
{{else}}export HAB_URI="{{.URI}}"
if [ -z "$HAB_FREEZE" ]; then export HAB_FREEZE="{{.Freeze}}"; fi
{{end}}
{{range .Unsets}}{{if eq $.Shell "batch"}}set {{.Name}}=
{{else if eq $.Shell "ps"}}Remove-Item Env:{{.Name}} -ErrorAction SilentlyContinue
{{else}}unset {{.Name}}
{{end}}{{end}}
{{range .Sets}}{{if eq $.Shell "batch"}}set {{.Name}}={{.Value}}
{{else if eq $.Shell "ps"}}$env:{{.Name}} = "{{.Value}}"
{{else}}export {{.Name}}="{{.Value}}"
{{end}}{{end}}
{{range .Aliases}}{{if $.PerFile}}{{if eq $.Shell "batch"}}doskey {{.Name}}={{.Script}} $*
{{end}}{{else if eq $.Shell "ps"}}function {{.Name}} { {{.Command}} $args }
{{else}}{{.Name}}() { {{.Command}} "$@" ; }
{{end}}{{end}}
`

const launchTemplateSource = `{{if eq .Shell "batch"}}@echo off
call "%~dp0{{.ConfigRel}}"
{{if .Alias}}call {{.Alias}} {{.Args}}
exit /b %errorlevel%
{{end}}{{else if eq .Shell "ps"}}. "$PSScriptRoot/{{.ConfigRel}}"
{{if .Alias}}{{.Alias}} {{.Args}}
{{if not .StayOpen}}exit $LASTEXITCODE
{{end}}{{end}}{{else}}#!/bin/sh
. "$(dirname "$0")/{{.ConfigRel}}"
{{if .Alias}}{{.Alias}} {{.Args}}
exit $?
{{end}}{{end}}
`

const aliasTemplateSource = `{{if eq .Shell "batch"}}@echo off
{{.Command}} %*
{{else}}#!/bin/sh
{{.Command}} "$@"
{{end}}
`
