/*
	Package query selects images by their key/value map annotations.

	Filter intersects a candidate set of images with the images matching each
	(key, value) constraint, using exact, case-sensitive matching performed by an
	AnnotationIndex such as the remote store client.  Candidates resolves a scope
	(everything, one image, a dataset or a project) into the candidate set.
*/
package query
