package jobstate_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	jobstate "github.com/vflow/jobstate"
)

var _ = Describe("JobStateCore", func() {
	var (
		store *jobstate.Store
		core  *jobstate.JobStateCore
		ctx   context.Context
		tmp   string
	)

	BeforeEach(func() {
		var err error
		tmp, err = os.MkdirTemp("", "jobstate_core_*")
		Expect(err).NotTo(HaveOccurred())
		store, core = openTempBadgerStore(tmp)
		ctx = context.Background()
	})

	AfterEach(func() {
		_ = store.Close()
		_ = os.RemoveAll(tmp)
	})

	Describe("Create", func() {
		It("should put a job into ACTIVATABLE state and make it findable", func() {
			rec := &jobstate.JobRecord{Type: []byte("send_email"), Retries: 3}

			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Create(txn, 1, rec)
			})).To(Succeed())

			var state jobstate.JobState
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				var err error
				state, err = core.GetState(txn, 1)
				return err
			})).To(Succeed())
			Expect(state).To(Equal(jobstate.StateActivatable))

			var found []uint64
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				return core.ForEachActivatable(txn, []byte("send_email"), func(key uint64, _ *jobstate.JobRecord) (bool, error) {
					found = append(found, key)
					return true, nil
				})
			})).To(Succeed())
			Expect(found).To(ConsistOf(uint64(1)))
		})

		It("should reject a record with an empty type", func() {
			rec := &jobstate.JobRecord{Retries: 1}
			err := store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Create(txn, 1, rec)
			})
			Expect(err).To(MatchError(jobstate.ErrInvalidArgument))
		})
	})

	Describe("Activate then Timeout", func() {
		It("should move a job out of JOB_ACTIVATABLE into JOB_DEADLINES and back", func() {
			rec := &jobstate.JobRecord{Type: []byte("send_email"), Retries: 3}
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Create(txn, 1, rec)
			})).To(Succeed())

			rec.Deadline = uint64(time.Now().Add(time.Minute).UnixMilli())
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Activate(txn, 1, rec)
			})).To(Succeed())

			var activatable []uint64
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				return core.ForEachActivatable(txn, []byte("send_email"), func(key uint64, _ *jobstate.JobRecord) (bool, error) {
					activatable = append(activatable, key)
					return true, nil
				})
			})).To(Succeed())
			Expect(activatable).To(BeEmpty())

			var timedOut []uint64
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				return core.ForEachTimedOut(txn, uint64(time.Now().Add(2*time.Minute).UnixMilli()), func(key uint64, _ *jobstate.JobRecord) (bool, error) {
					timedOut = append(timedOut, key)
					return true, nil
				})
			})).To(Succeed())
			Expect(timedOut).To(ConsistOf(uint64(1)))

			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Timeout(txn, 1, rec)
			})).To(Succeed())

			var state jobstate.JobState
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				var err error
				state, err = core.GetState(txn, 1)
				return err
			})).To(Succeed())
			Expect(state).To(Equal(jobstate.StateActivatable))
		})
	})

	Describe("Complete", func() {
		It("should purge the job entirely", func() {
			rec := &jobstate.JobRecord{Type: []byte("send_email"), Retries: 3}
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Create(txn, 1, rec)
			})).To(Succeed())

			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Complete(txn, 1, rec)
			})).To(Succeed())

			var exists bool
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				var err error
				exists, err = core.Exists(txn, 1)
				return err
			})).To(Succeed())
			Expect(exists).To(BeFalse())
		})

		It("should succeed when completing an already-absent key", func() {
			rec := &jobstate.JobRecord{Type: []byte("send_email"), Retries: 3}
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Complete(txn, 42, rec)
			})).To(Succeed())
		})
	})

	Describe("Fail", func() {
		It("should back the job off when retries and a backoff are both positive", func() {
			rec := &jobstate.JobRecord{Type: []byte("send_email"), Retries: 2, RetryBackoff: 5000}
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Create(txn, 1, rec)
			})).To(Succeed())

			rec.RecurringTime = uint64(time.Now().Add(5 * time.Second).UnixMilli())
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Fail(txn, 1, rec)
			})).To(Succeed())

			var state jobstate.JobState
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				var err error
				state, err = core.GetState(txn, 1)
				return err
			})).To(Succeed())
			Expect(state).To(Equal(jobstate.StateFailed))

			var nextDue int64
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				var err error
				nextDue, err = core.FindBackedOffJobs(txn, uint64(time.Now().UnixMilli()), func(key uint64, _ *jobstate.JobRecord) (bool, error) {
					return false, nil
				})
				return err
			})).To(Succeed())
			Expect(nextDue).To(BeNumerically(">", 0))
		})

		It("should return straight to ACTIVATABLE when retries remain with no backoff", func() {
			rec := &jobstate.JobRecord{Type: []byte("send_email"), Retries: 2}
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Create(txn, 1, rec)
			})).To(Succeed())

			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Fail(txn, 1, rec)
			})).To(Succeed())

			var state jobstate.JobState
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				var err error
				state, err = core.GetState(txn, 1)
				return err
			})).To(Succeed())
			Expect(state).To(Equal(jobstate.StateActivatable))
		})
	})

	Describe("RecurAfterBackoff", func() {
		It("should clear the backoff entry and restore ACTIVATABLE", func() {
			rec := &jobstate.JobRecord{Type: []byte("send_email"), Retries: 2, RetryBackoff: 5000}
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Create(txn, 1, rec)
			})).To(Succeed())

			rec.RecurringTime = uint64(time.Now().Add(-time.Second).UnixMilli())
			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.Fail(txn, 1, rec)
			})).To(Succeed())

			Expect(store.Engine().Update(ctx, func(txn jobstate.Txn) error {
				return core.RecurAfterBackoff(txn, 1, rec)
			})).To(Succeed())

			var nextDue int64
			Expect(store.Engine().View(ctx, func(txn jobstate.Txn) error {
				var err error
				nextDue, err = core.FindBackedOffJobs(txn, uint64(time.Now().UnixMilli()), func(key uint64, _ *jobstate.JobRecord) (bool, error) {
					return true, nil
				})
				return err
			})).To(Succeed())
			Expect(nextDue).To(Equal(int64(-1)))
		})
	})
})
