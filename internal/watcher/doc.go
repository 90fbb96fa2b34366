// Package watcher keeps a catalog in step with a tree of manifest files.
//
// Index walks the tree once and writes every manifest it finds. A Watcher
// then follows the tree with fsnotify: changed paths are collected as they
// arrive and applied together on each tick, so an editor writing a file in
// several steps produces a single catalog update. Relative paths inside the
// tree become the manifests' relative paths in the catalog.
//
// Example usage:
//
//	c, err := catalog.Open("index.db", catalog.ReadWrite)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	w, err := watcher.New(c, "manifests", 2*time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := w.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
