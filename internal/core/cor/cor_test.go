// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/assert"

	"github.com/tdontdon/fit5225/internal/core/cor"
)

// appendCommand appends its suffix to the string input.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	err    error
	halt   bool
	ran    *[]string
}

func newAppend(name, suffix string, ran *[]string) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix, ran: ran}
}

func (c *appendCommand) Execute(context cor.Context) {
	*c.ran = append(*c.ran, c.GetName())
	if c.err != nil {
		c.Fail(context, c.err)
		return
	}
	c.Succeed(context)
	context.Add(c.GetOutputParam(), context.Get(c.GetInputParam()).(string)+c.suffix)
	if c.halt {
		context.Halt()
	}
}

func newContext(in interface{}) cor.Context {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	if in != nil {
		chCtx.Add(cor.CtxIn, in)
	}
	return chCtx
}

func TestChainPipesOutputs(t *testing.T) {
	var ran []string
	chain := cor.NewBaseChain("chain")
	chain.AddCommand(newAppend("a", "-a", &ran)).AddCommand(newAppend("b", "-b", &ran))

	chCtx := newContext("x")
	chain.Execute(chCtx)

	assert.That(t, !chCtx.HasErrors())
	assert.Equal(t, chCtx.Get(cor.CtxIn), "x-a-b")
	assert.Nil(t, chCtx.Get(cor.CtxOut))
	assert.DeepEqual(t, ran, []string{"a", "b"})
}

func TestChainStopsOnError(t *testing.T) {
	var ran []string
	failing := newAppend("a", "-a", &ran)
	failing.err = errors.New("boom")
	chain := cor.NewBaseChain("chain")
	chain.AddCommand(failing).AddCommand(newAppend("b", "-b", &ran))

	chCtx := newContext("x")
	chain.Execute(chCtx)

	assert.That(t, chCtx.HasErrors())
	assert.Equal(t, chCtx.FirstError(), failing.err)
	assert.DeepEqual(t, ran, []string{"a"})
}

func TestChainContinueOnFailure(t *testing.T) {
	var ran []string
	first := newAppend("a", "-a", &ran)
	first.err = errors.New("first")
	second := newAppend("b", "-b", &ran)
	second.err = errors.New("second")
	chain := cor.NewBaseChain("chain")
	chain.ContinueOnFailure(true).AddCommand(first).AddCommand(second)

	chCtx := newContext("x")
	chain.Execute(chCtx)

	assert.DeepEqual(t, ran, []string{"a", "b"})
	assert.Equal(t, len(chCtx.GetErrors()), 2)
	assert.Equal(t, chCtx.FirstError(), first.err)
}

func TestChainHalt(t *testing.T) {
	var ran []string
	halting := newAppend("a", "-a", &ran)
	halting.halt = true
	chain := cor.NewBaseChain("chain")
	chain.AddCommand(halting).AddCommand(newAppend("b", "-b", &ran))

	chCtx := newContext("x")
	chain.Execute(chCtx)

	assert.That(t, chCtx.IsHalted())
	assert.That(t, !chCtx.HasErrors())
	assert.DeepEqual(t, ran, []string{"a"})
}

func TestChainSkipsCommandWithoutInput(t *testing.T) {
	var ran []string
	chain := cor.NewBaseChain("chain")
	chain.AddCommand(newAppend("a", "-a", &ran))

	chCtx := newContext(nil)
	chain.Execute(chCtx)

	assert.Equal(t, len(ran), 0)
	assert.That(t, !chCtx.HasErrors())
}

func TestChainRestoresGoContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "root")
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, "x")

	var ran []string
	cor.NewBaseChain("chain").AddCommand(newAppend("a", "-a", &ran)).Execute(chCtx)

	assert.Equal(t, chCtx.GetContext(), ctx)
}

func TestContextCloseRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept")
	removed := filepath.Join(dir, "removed")
	assert.NoError(t, os.WriteFile(kept, []byte("k"), 0o600))
	assert.NoError(t, os.WriteFile(removed, []byte("r"), 0o600))

	chCtx := cor.NewBaseContext()
	chCtx.AddTempFile(removed)
	chCtx.AddTempFile(filepath.Join(dir, "never-created"))
	chCtx.Close()

	_, err := os.Stat(removed)
	assert.That(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(kept)
	assert.NoError(t, err)
	assert.Equal(t, len(chCtx.GetTempFiles()), 0)
}

func TestContextFirstErrorKeepsRecordingOrder(t *testing.T) {
	chCtx := newContext(nil)
	first, second, retried := errors.New("first"), errors.New("second"), errors.New("retried")

	chCtx.AddError("a", first)
	chCtx.AddError("b", second)
	chCtx.AddError("a", retried)

	assert.Equal(t, chCtx.FirstError(), retried)
	assert.Equal(t, chCtx.GetErrors()["b"], second)
	assert.Equal(t, len(chCtx.GetErrors()), 2)
}
