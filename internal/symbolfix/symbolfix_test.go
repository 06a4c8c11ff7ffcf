package symbolfix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixPartiallyDemangledRustSymbols(t *testing.T) {
	cases := []struct{ in, want string }{
		{
			"std::sys::unix::fs::File::open::hb90e1c1c787080f0",
			"std::sys::unix::fs::File::open",
		},
		{
			"_$LT$std..fs..ReadDir$u20$as$u20$core..iter..traits..iterator..Iterator$GT$::next::hc14f1750ca79129b",
			"<std::fs::ReadDir as core::iter::traits::iterator::Iterator>::next",
		},
		{
			"rg::search_parallel::_$u7b$$u7b$closure$u7d$$u7d$::_$u7b$$u7b$closure$u7d$$u7d$::h6e849b55a66fcd85",
			"rg::search_parallel::_{{closure}}::_{{closure}}",
		},
		{
			"_$LT$F$u20$as$u20$alloc..boxed..FnBox$LT$A$GT$$GT$::call_box::h8612a2a83552fc2d",
			"<F as alloc::boxed::FnBox<A>>::call_box",
		},
		{
			"_$LT$$RF$std..fs..File$u20$as$u20$std..io..Read$GT$::read::h5d84059cf335c8e6",
			"<&std::fs::File as std::io::Read>::read",
		},
		{
			"_$LT$std..thread..JoinHandle$LT$T$GT$$GT$::join::hca6aa63e512626da",
			"<std::thread::JoinHandle<T>>::join",
		},
		{
			"std::sync::mpsc::shared::Packet$LT$T$GT$::recv::hfde2d9e28d13fd56",
			"std::sync::mpsc::shared::Packet<T>::recv",
		},
		{
			"crossbeam_utils::thread::ScopedThreadBuilder::spawn::_$u7b$$u7b$closure$u7d$$u7d$::h8fdc7d4f74c0da05",
			"crossbeam_utils::thread::ScopedThreadBuilder::spawn::_{{closure}}",
		},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Fix(c.in), "input: %s", c.in)
	}
}

func TestFixOnFullyMangledSymbolsUnchanged(t *testing.T) {
	cases := []string{
		"_ZN4testE",
		"_ZN4test1a2bcE",
		"_ZN7inferno10flamegraph5merge6frames17hacfe2d67301633c2E",
		"_ZN3std2rt19lang_start_internal17h540c897fe52ba9c5E",
		"_ZN116_$LT$core..str..pattern..CharSearcher$LT$$u27$a$GT$$u20$as$u20$core..str..pattern..ReverseSearcher$LT$$u27$a$GT$$GT$15next_match_back17h09d544049dd719bbE",
		"_ZN3std5panic12catch_unwind17h0562757d03ff60b3E",
		"_ZN3std9panicking3try17h9c1cbc5599e1efbfE",
	}
	for _, c := range cases {
		assert.Equal(t, c, Fix(c))
	}
}
