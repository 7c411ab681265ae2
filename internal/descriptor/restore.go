package descriptor

import (
	"context"
	"fmt"

	"github.com/atomistic/descriptor/internal/checkpoint"
	"github.com/atomistic/descriptor/internal/monitoring/logging"
	"github.com/atomistic/descriptor/pkg/errors"
)

// Variable scope layout.  suffix distinguishes descriptor instances sharing
// one checkpoint and is appended directly to the scope name:
//
//	filter_type_all{sfx}/matrix_{l}              radial embedding net
//	filter_type_all{sfx}/matrix_{l}_ebd_of_ebd   one-sided type net
//	filter_type_all{sfx}/matrix_{l}_two_side_ebd two-sided pair net
//	filter_type_all{sfx}/embedding_compose_s     two-sided mixing
//	attention_layer_{i}{sfx}/c_query/matrix      attention projections
//	attention_layer_{i}{sfx}/layer_normalization{_i}/gamma
//	type_embed_net{sfx}/type_embedding           type embedding table
//
// Layer indices l are 1-based, attention indices i 0-based; the first layer
// normalization scope carries no index.
const (
	netSuffixOneSide = "_ebd_of_ebd"
	netSuffixTwoSide = "_two_side_ebd"
)

func filterScope(suffix string) string { return "filter_type_all" + suffix }

func attentionScope(i int, suffix string) string {
	return fmt.Sprintf("attention_layer_%d%s", i, suffix)
}

func layerNormScope(i int) string {
	if i == 0 {
		return "layer_normalization"
	}
	return fmt.Sprintf("layer_normalization_%d", i)
}

// Restore loads every descriptor parameter from the store.  Matrix and bias
// of every layer are required; timesteps and layer norms fall back to their
// initialized values when the store does not carry them.
func (d *Descriptor) Restore(store *checkpoint.Store, suffix string) error {
	restored, err := d.restore(store, suffix)
	d.metrics.RecordRestore(context.Background(), suffix, restored, err == nil)
	if err != nil {
		d.log.Error("checkpoint restore failed",
			logging.String("suffix", suffix), logging.Err(err))
		return err
	}
	d.embedding.Invalidate()
	d.log.Info("checkpoint restored",
		logging.String("suffix", suffix), logging.Int("variables", restored))
	return nil
}

func (d *Descriptor) restore(store *checkpoint.Store, suffix string) (int, error) {
	restored := 0

	table, err := store.Matrix("type_embed_net" + suffix + "/type_embedding")
	if err != nil {
		return restored, err
	}
	if err := d.embedding.SetTable(table); err != nil {
		return restored, err
	}
	restored++

	n, err := d.restoreNet(store, d.embedding.BaseNet(), filterScope(suffix), "")
	restored += n
	if err != nil {
		return restored, err
	}
	if d.embedding.OneSide() {
		n, err = d.restoreNet(store, d.embedding.TypeNet(), filterScope(suffix), netSuffixOneSide)
		restored += n
		if err != nil {
			return restored, err
		}
	} else {
		n, err = d.restoreNet(store, d.embedding.PairNet(), filterScope(suffix), netSuffixTwoSide)
		restored += n
		if err != nil {
			return restored, err
		}
		cs, err := store.Vector(filterScope(suffix) + "/embedding_compose_s")
		if err != nil {
			return restored, err
		}
		cn, err := store.Vector(filterScope(suffix) + "/embedding_compose_n")
		if err != nil {
			return restored, err
		}
		if err := d.embedding.SetCompose(cs, cn); err != nil {
			return restored, err
		}
		restored += 2
	}

	for i, layer := range d.attention.Layers() {
		scope := attentionScope(i, suffix)
		for _, p := range []struct {
			name string
			lin  *LinearLayer
		}{
			{"c_query", layer.Query()},
			{"c_key", layer.Key()},
			{"c_value", layer.Value()},
			{"c_out", layer.OutProj()},
		} {
			w, err := store.Matrix(scope + "/" + p.name + "/matrix")
			if err != nil {
				return restored, err
			}
			b, err := store.Vector(scope + "/" + p.name + "/bias")
			if err != nil {
				return restored, err
			}
			if err := p.lin.SetParams(w, b, nil); err != nil {
				return restored, errors.Wrap(err, errors.GetCode(err),
					fmt.Sprintf("restore %s/%s", scope, p.name))
			}
			restored += 2
		}

		normScope := scope + "/" + layerNormScope(i)
		if store.Has(normScope + "/gamma") {
			gamma, err := store.Vector(normScope + "/gamma")
			if err != nil {
				return restored, err
			}
			beta, err := store.Vector(normScope + "/beta")
			if err != nil {
				return restored, err
			}
			if len(gamma) != d.width || len(beta) != d.width {
				return restored, errors.New(errors.CodeShapeMismatch,
					fmt.Sprintf("%s parameters must have width %d", normScope, d.width))
			}
			layer.SetNorm(gamma, beta)
			restored += 2
		}
	}
	return restored, nil
}

// restoreNet loads matrix/bias (and timestep when present) of every layer.
func (d *Descriptor) restoreNet(store *checkpoint.Store, net *EmbeddingNet, scope, netSfx string) (int, error) {
	restored := 0
	for l, layer := range net.Layers() {
		base := fmt.Sprintf("%s/matrix_%d%s", scope, l+1, netSfx)
		w, err := store.Matrix(base)
		if err != nil {
			return restored, err
		}
		b, err := store.Vector(fmt.Sprintf("%s/bias_%d%s", scope, l+1, netSfx))
		if err != nil {
			return restored, err
		}
		var idt []float64
		idtName := fmt.Sprintf("%s/idt_%d%s", scope, l+1, netSfx)
		if store.Has(idtName) {
			if idt, err = store.Vector(idtName); err != nil {
				return restored, err
			}
		}
		if err := layer.SetParams(w, b, idt); err != nil {
			return restored, errors.Wrap(err, errors.GetCode(err),
				fmt.Sprintf("restore %s", base))
		}
		restored += 2
		if idt != nil {
			restored++
		}
	}
	return restored, nil
}

// Export writes every descriptor parameter into the store under the same
// scope layout Restore reads, so a save/restore round trip reproduces the
// model exactly.
func (d *Descriptor) Export(store *checkpoint.Store, suffix string, dtype checkpoint.DType) error {
	if err := store.PutMatrix("type_embed_net"+suffix+"/type_embedding",
		d.embedding.Table(), dtype); err != nil {
		return err
	}

	if err := exportNet(store, d.embedding.BaseNet(), filterScope(suffix), "", dtype); err != nil {
		return err
	}
	if d.embedding.OneSide() {
		if err := exportNet(store, d.embedding.TypeNet(), filterScope(suffix), netSuffixOneSide, dtype); err != nil {
			return err
		}
	} else {
		if err := exportNet(store, d.embedding.PairNet(), filterScope(suffix), netSuffixTwoSide, dtype); err != nil {
			return err
		}
		if err := store.PutVector(filterScope(suffix)+"/embedding_compose_s",
			d.embedding.ComposeS(), dtype); err != nil {
			return err
		}
		if err := store.PutVector(filterScope(suffix)+"/embedding_compose_n",
			d.embedding.ComposeN(), dtype); err != nil {
			return err
		}
	}

	for i, layer := range d.attention.Layers() {
		scope := attentionScope(i, suffix)
		for _, p := range []struct {
			name string
			lin  *LinearLayer
		}{
			{"c_query", layer.Query()},
			{"c_key", layer.Key()},
			{"c_value", layer.Value()},
			{"c_out", layer.OutProj()},
		} {
			if err := store.PutMatrix(scope+"/"+p.name+"/matrix", p.lin.W, dtype); err != nil {
				return err
			}
			if err := store.PutVector(scope+"/"+p.name+"/bias", p.lin.B, dtype); err != nil {
				return err
			}
		}
		normScope := scope + "/" + layerNormScope(i)
		if err := store.PutVector(normScope+"/gamma", layer.gamma, dtype); err != nil {
			return err
		}
		if err := store.PutVector(normScope+"/beta", layer.beta, dtype); err != nil {
			return err
		}
	}
	return nil
}

func exportNet(store *checkpoint.Store, net *EmbeddingNet, scope, netSfx string, dtype checkpoint.DType) error {
	for l, layer := range net.Layers() {
		if err := store.PutMatrix(fmt.Sprintf("%s/matrix_%d%s", scope, l+1, netSfx),
			layer.W, dtype); err != nil {
			return err
		}
		if err := store.PutVector(fmt.Sprintf("%s/bias_%d%s", scope, l+1, netSfx),
			layer.B, dtype); err != nil {
			return err
		}
		if layer.Idt != nil {
			if err := store.PutVector(fmt.Sprintf("%s/idt_%d%s", scope, l+1, netSfx),
				layer.Idt, dtype); err != nil {
				return err
			}
		}
	}
	return nil
}
