// Package esbuildplugin exposes the Slang transformer as an esbuild plugin,
// so `import shader from "./post.slang?glsl"` bundles the compiled code.
package esbuildplugin

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/jormeli/slangload/pkg/transform"
)

// Namespace is the esbuild namespace resolved Slang modules live in.
const Namespace = "slang"

// New returns an esbuild plugin named after the transformer's plugin
// name. ctx bounds every compile the plugin runs.
func New(ctx context.Context, tr *transform.Transformer, name string) api.Plugin {
	if name == "" {
		name = transform.DefaultPluginName
	}

	return api.Plugin{
		Name: name,
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `(?i)\.slang(\?[A-Za-z0-9_-]+)?$`}, resolve)

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: Namespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				return load(ctx, tr, name, args), nil
			})
		},
	}
}

func resolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	req, ok := transform.Match(args.Path)
	if !ok {
		return api.OnResolveResult{}, nil
	}

	path := req.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(args.ResolveDir, path)
	}

	id := path
	if req.Target != "" {
		id += "?" + req.Target
	}

	return api.OnResolveResult{Path: id, Namespace: Namespace}, nil
}

func load(ctx context.Context, tr *transform.Transformer, name string, args api.OnLoadArgs) api.OnLoadResult {
	out, err := tr.Load(ctx, args.Path)
	if err != nil {
		return api.OnLoadResult{Errors: []api.Message{message(name, args.Path, err)}}
	}

	if out == nil {
		return api.OnLoadResult{Errors: []api.Message{{
			PluginName: name,
			Text:       "not a Slang module: " + args.Path,
		}}}
	}

	contents := out.Module

	return api.OnLoadResult{
		Contents:   &contents,
		Loader:     api.LoaderJS,
		ResolveDir: filepath.Dir(out.Entry),
		WatchFiles: append([]string{out.Entry}, out.Dependencies...),
	}
}

func message(name, id string, err error) api.Message {
	msg := api.Message{PluginName: name, Text: err.Error(), Detail: err}

	var terr *transform.Error
	if errors.As(err, &terr) {
		msg.Text = terr.Message
		msg.Location = &api.Location{
			File:      terr.ID,
			Namespace: Namespace,
			Line:      terr.Loc.Line,
			Column:    terr.Loc.Column,
		}

		return msg
	}

	msg.Location = &api.Location{File: id, Namespace: Namespace}

	return msg
}
