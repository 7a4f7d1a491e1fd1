package der

// CopyTree detaches a decoded value (and its descendants) from its
// backing Image by materializing each node's FullBytes into its own
// store, so the result can be spliced into a value tree headed for a
// different image via Encode — e.g. lifting a SignerInfo.sid out of a
// certificate's TBSCertificate.issuer/serialNumber into a freshly built
// SignedData (spec.md §4.4 "detached struct-clone").
func CopyTree(v *Value) *Value {
	if v == nil {
		return nil
	}
	if v.IsAbsent() {
		return &Value{Schema: v.Schema, FieldName: v.FieldName, Off: Absent, ChoiceIndex: -1}
	}

	out := &Value{
		Schema:      v.Schema,
		FieldName:   v.FieldName,
		EffClass:    v.EffClass,
		EffTag:      v.EffTag,
		Constructed: v.Constructed,
		ChoiceIndex: v.ChoiceIndex,
	}

	if len(v.Children) == 0 {
		full := append([]byte{}, v.FullBytes()...)
		hdrLen := v.NHdr
		if v.store != nil {
			hdrLen = v.storeNHdr
		}
		out.store = full[hdrLen:]
		out.storeHeader = full[:hdrLen]
		out.storeNHdr = hdrLen
		return out
	}

	out.Children = make([]*Value, len(v.Children))
	for i, c := range v.Children {
		out.Children[i] = CopyTree(c)
	}
	return out
}
