// Package mocks provides hand-written test doubles for the backend contracts and the LLM
// client.
//
// Each mock records its calls and exposes a *Func field per method so tests can replace
// the default behaviour:
//
//	backend := mocks.NewMockBackend()
//	backend.FailCommitWith(errors.New("conflict"))
//
//	wf := workflow.New(project, bundle, workflow.Deps{Backend: backend, ...})
//	err := wf.Submit(ctx)
//	// assert on backend.CommitCalls, backend.CallOrder()
package mocks
