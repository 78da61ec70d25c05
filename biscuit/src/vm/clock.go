package vm

// SelectVictim runs the second-chance clock algorithm (§4.D) and
// returns the chosen frame. Callers MUST ensure at least one non-IO
// resident frame exists before calling — if every descriptor is
// SWAP/IO the scan would loop forever, so this guards against that and
// panics instead of hanging.
func (vc *VmCore) SelectVictim() *FrameDesc {
	vc.fold()

	ft := vc.frames
	if ft.Len() == 0 {
		panic("clock run over an empty frame table")
	}
	if ft.hand < 0 {
		ft.hand = 0
	}

	for i := 0; ; i++ {
		if i >= 2*ft.Len()+1 {
			panic("clock found no evictable frame: all descriptors are SWAP or IO")
		}
		fd := ft.descs[ft.hand]
		if fd.Flags.has(F_SWAP) || fd.Flags.has(F_IO) {
			ft.hand = (ft.hand + 1) % ft.Len()
			continue
		}
		if fd.Flags.has(F_ACCESSED) {
			fd.Flags &^= F_ACCESSED
			ft.hand = (ft.hand + 1) % ft.Len()
			continue
		}
		ft.hand = (ft.hand + 1) % ft.Len()
		vc.broadcast()
		return fd
	}
}
