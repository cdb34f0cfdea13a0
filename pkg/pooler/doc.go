// Package pooler turns text into sentence embeddings with the pooling
// strategy a model was trained with.
//
// Quick start:
//
//	p, err := pooler.New(ctx, "sentence-transformers/all-MiniLM-L6-v2")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	emb, _ := p.Embed(ctx, "connection refused to db-primary:5432")
//	fmt.Println(p.Spec().Method, len(emb.Vector)) // meanpooling 384
//
// The model may be a hub repository id, a local model directory or a single
// .onnx file. Unless pinned with WithMethod, the pooling method is read from
// the model's 1_Pooling/config.json. The Pooler is safe for concurrent use;
// create once, reuse across requests.
package pooler
